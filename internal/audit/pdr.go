// Package audit provides PDR (Process Decision Record) writing for pageforge.
// Every lifecycle decision and every per-page failure is appended to the
// owning task's log.
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/fentz26/pageforge/internal/models"
)

// Outcomes recorded on entries.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Backend persists decision records.
type Backend interface {
	WritePDR(ctx context.Context, action, inputsHash, outcome, taskID, details string) (*models.PDREntry, error)
	ListPDRForTask(ctx context.Context, taskID string) ([]models.PDREntry, error)
}

// PDRWriter writes Process Decision Records for audit trails.
type PDRWriter struct {
	backend Backend
}

// NewPDRWriter creates a new PDR writer.
func NewPDRWriter(b Backend) *PDRWriter {
	return &PDRWriter{backend: b}
}

// Record writes a PDR entry for a state-mutating action.
func (w *PDRWriter) Record(ctx context.Context, action string, inputs any, outcome, taskID, details string) (*models.PDREntry, error) {
	return w.backend.WritePDR(ctx, action, hashInputs(inputs), outcome, taskID, details)
}

// Log returns the running log of a task.
func (w *PDRWriter) Log(ctx context.Context, taskID string) ([]models.PDREntry, error) {
	return w.backend.ListPDRForTask(ctx, taskID)
}

// hashInputs creates a SHA256 hash of the inputs for reproducibility.
func hashInputs(inputs any) string {
	data, err := json.Marshal(inputs)
	if err != nil {
		return "hash_error"
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}
