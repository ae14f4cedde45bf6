// Package identity generates display names for generated pages.
package identity

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/fentz26/pageforge/internal/models"
)

// FemaleShare is the probability that a generated identity is female.
const FemaleShare = 0.7

// fallbackBase is used when the caller supplies a blank base name.
const fallbackBase = "Page"

var femaleNames = []string{
	"Emma", "Olivia", "Ava", "Sophia", "Isabella", "Mia", "Charlotte", "Amelia",
	"Harper", "Evelyn", "Abigail", "Emily", "Ella", "Madison", "Scarlett", "Grace",
	"Chloe", "Victoria", "Riley", "Aria", "Lily", "Zoey", "Nora", "Hannah",
	"Layla", "Stella", "Hazel", "Aurora", "Natalie", "Lucy", "Savannah", "Audrey",
}

var maleNames = []string{
	"Liam", "Noah", "Oliver", "Elijah", "James", "William", "Benjamin", "Lucas",
	"Henry", "Alexander", "Mason", "Michael", "Ethan", "Daniel", "Jacob", "Logan",
	"Jackson", "Levi", "Sebastian", "Mateo", "Jack", "Owen", "Theodore", "Aiden",
}

var surnames = []string{
	"Smith", "Johnson", "Williams", "Brown", "Jones", "Garcia", "Miller", "Davis",
	"Rodriguez", "Martinez", "Wilson", "Anderson", "Taylor", "Thomas", "Moore", "Jackson",
	"Martin", "Lee", "Thompson", "White", "Harris", "Clark", "Lewis", "Walker",
}

// Identity is a generated page identity.
type Identity struct {
	DisplayName string
	Gender      models.Gender
}

// Generator draws identities from a random source. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Generator backed by src. A nil src uses a randomly seeded PCG.
func New(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewPCG(rand.Uint64(), rand.Uint64())
	}
	return &Generator{rng: rand.New(src)}
}

var defaultGenerator = New(nil)

// Generate returns an identity for the page at seq of a task named baseName
// using the package-level generator.
func Generate(baseName string, seq int) Identity {
	return defaultGenerator.Generate(baseName, seq)
}

// Generate returns "<baseName> - <First Last>" and the gender of the chosen
// first name. The sequence number varies the surname so neighbouring pages
// of one task rarely collide.
func (g *Generator) Generate(baseName string, seq int) Identity {
	base := strings.TrimSpace(baseName)
	if base == "" {
		base = fallbackBase
	}

	g.mu.Lock()
	female := g.rng.Float64() < FemaleShare
	var first string
	if female {
		first = femaleNames[g.rng.IntN(len(femaleNames))]
	} else {
		first = maleNames[g.rng.IntN(len(maleNames))]
	}
	offset := g.rng.IntN(len(surnames))
	g.mu.Unlock()

	if seq < 0 {
		seq = -seq
	}
	last := surnames[(offset+seq)%len(surnames)]

	gender := models.GenderMale
	if female {
		gender = models.GenderFemale
	}
	return Identity{
		DisplayName: fmt.Sprintf("%s - %s %s", base, first, last),
		Gender:      gender,
	}
}
