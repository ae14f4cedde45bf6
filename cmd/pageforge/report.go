package main

import (
	"fmt"
	"net/http"
	"os"
	"text/tabwriter"

	"github.com/fentz26/pageforge/internal/efficiency"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/orchestrator"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show the efficiency report across all tasks",
	RunE:  runReport,
}

var benchmarkCmd = &cobra.Command{
	Use:   "benchmark",
	Short: "Run a page-creation benchmark without recording a task",
	RunE:  runBenchmark,
}

var (
	benchName     string
	benchCount    int
	benchHeadless bool
	benchTimeout  int
)

func init() {
	benchmarkCmd.Flags().StringVar(&benchName, "name", orchestrator.DefaultBenchmarkBaseName, "Base name for benchmark pages")
	benchmarkCmd.Flags().IntVar(&benchCount, "count", orchestrator.DefaultBenchmarkCount, "Number of pages to attempt")
	benchmarkCmd.Flags().BoolVar(&benchHeadless, "headless", true, "Run the browser headless")
	benchmarkCmd.Flags().IntVar(&benchTimeout, "timeout", int(orchestrator.DefaultBenchmarkTimeout.Seconds()), "Per-call timeout in seconds")
}

func runReport(cmd *cobra.Command, args []string) error {
	var r efficiency.Report
	if err := apiGet("/report", &r); err != nil {
		return err
	}

	fmt.Printf("Tasks:          %d\n", r.TotalTasks)
	for _, s := range models.TaskStatuses {
		if n := r.TasksByStatus[s]; n > 0 {
			fmt.Printf("  %-12s  %d\n", s, n)
		}
	}
	fmt.Printf("Pages:          %d (%d created, %d failed)\n", r.TotalPages, r.PagesCreated, r.PagesFailed)
	fmt.Printf("Success rate:   %.1f%%\n", r.SuccessRate)
	fmt.Printf("Pages per task: %.2f\n", r.AvgPagesPerTask)
	fmt.Printf("Invites:        %d sent, %d failed\n", r.InvitesSent, r.InvitesFailed)
	return nil
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	body := map[string]any{
		"base_name":   benchName,
		"count":       benchCount,
		"headless":    benchHeadless,
		"timeout_sec": benchTimeout,
	}
	fmt.Printf("Running benchmark: %d pages named %q...\n", benchCount, benchName)

	var res orchestrator.BenchmarkResult
	if err := apiDo(benchmarkClient, http.MethodPost, "/benchmark", body, &res); err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tNAME\tRESULT\tSECONDS")
	for _, p := range res.Pages {
		result := "ok"
		if !p.Success {
			result = "error: " + truncate(p.Error, 50)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%.2f\n", p.Sequence, truncate(p.Name, 40), result, p.Duration)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	m := res.Metrics
	fmt.Println()
	fmt.Printf("Driver:         %s\n", res.Driver)
	fmt.Printf("Pages created:  %d\n", m.PagesCreated)
	fmt.Printf("Errors:         %d\n", m.Errors)
	fmt.Printf("Total time:     %.2fs\n", m.TotalTime)
	fmt.Printf("Avg per page:   %.2fs\n", m.AvgTimePerPage)
	fmt.Printf("Success rate:   %.1f%%\n", m.SuccessRate)
	if res.Aborted != "" {
		fmt.Printf("Aborted:        %s\n", res.Aborted)
	}
	if res.ReportKey != "" {
		fmt.Printf("Archived as:    %s\n", res.ReportKey)
	}
	return nil
}
