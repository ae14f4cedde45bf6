package main

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fentz26/pageforge/internal/controlplane"
	"github.com/fentz26/pageforge/internal/models"
	"github.com/fentz26/pageforge/internal/orchestrator"
	"github.com/spf13/cobra"
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Manage page-generation tasks",
}

var taskAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Submit a new task",
	RunE:  runTaskAdd,
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	RunE:  runTaskList,
}

var taskShowCmd = &cobra.Command{
	Use:   "show [task-id]",
	Short: "Show task details and pages",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskShow,
}

var taskStartCmd = &cobra.Command{
	Use:   "start [task-id]",
	Short: "Start a pending task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskStart,
}

var taskCancelCmd = &cobra.Command{
	Use:   "cancel [task-id]",
	Short: "Cancel a pending or running task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskCancel,
}

var taskDeleteCmd = &cobra.Command{
	Use:   "delete [task-id]",
	Short: "Delete a finished task and its pages",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskDelete,
}

var taskLogCmd = &cobra.Command{
	Use:   "log [task-id]",
	Short: "Show the task's decision log",
	Args:  cobra.ExactArgs(1),
	RunE:  runTaskLog,
}

var (
	taskName       string
	taskCount      int
	taskProfile    string
	taskRole       string
	taskCreator    string
	taskStatus     string
	taskStartAfter bool
	taskWait       bool
)

func init() {
	taskCmd.AddCommand(taskAddCmd, taskListCmd, taskShowCmd, taskStartCmd, taskCancelCmd, taskDeleteCmd, taskLogCmd)

	taskAddCmd.Flags().StringVar(&taskName, "name", "", "Base name for generated pages (required)")
	taskAddCmd.Flags().IntVar(&taskCount, "count", 1, "Number of pages to create")
	taskAddCmd.Flags().StringVar(&taskProfile, "profile", "", "Profile URL to invite to every created page")
	taskAddCmd.Flags().StringVar(&taskRole, "role", "", "Invite role ("+joinRoles()+")")
	taskAddCmd.Flags().StringVar(&taskCreator, "creator", "", "Creator profile recorded on invites")
	taskAddCmd.Flags().BoolVar(&taskStartAfter, "start", false, "Start the task immediately")
	taskAddCmd.MarkFlagRequired("name")

	taskListCmd.Flags().StringVar(&taskStatus, "status", "", "Filter by status (pending, running, completed, failed, cancelled)")

	taskStartCmd.Flags().BoolVar(&taskWait, "wait", false, "Wait for the task to finish, printing progress")
}

func runTaskAdd(cmd *cobra.Command, args []string) error {
	req := orchestrator.SubmitRequest{
		BaseName:       taskName,
		Count:          taskCount,
		ProfileURL:     taskProfile,
		InviteRole:     models.Role(taskRole),
		CreatorProfile: taskCreator,
	}
	var task models.Task
	if err := apiPost("/tasks", req, &task); err != nil {
		return err
	}
	fmt.Printf("Created task: %s\n", task.ID)

	if !taskStartAfter {
		return nil
	}
	return startTask(task.ID)
}

func runTaskList(cmd *cobra.Command, args []string) error {
	path := "/tasks"
	if taskStatus != "" {
		path += "?status=" + taskStatus
	}

	var tasks []models.Task
	if err := apiGet(path, &tasks); err != nil {
		return err
	}
	if len(tasks) == 0 {
		fmt.Println("No tasks found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tPROGRESS\tCREATED\tFAILED\tCOUNT")
	for _, t := range tasks {
		status := string(t.Status)
		if t.CancelRequested {
			status += "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d%%\t%d\t%d\t%d\n",
			truncateID(t.ID), truncate(t.BaseName, 32), status, t.Progress, t.PagesCreated, t.PagesFailed, t.Count)
	}
	return w.Flush()
}

func runTaskShow(cmd *cobra.Command, args []string) error {
	var task controlplane.TaskDetail
	if err := apiGet("/tasks/"+args[0], &task); err != nil {
		return err
	}

	fmt.Printf("ID:        %s\n", task.ID)
	fmt.Printf("Name:      %s\n", task.BaseName)
	fmt.Printf("Status:    %s\n", task.Status)
	if task.CancelRequested {
		fmt.Println("           (cancel requested)")
	}
	fmt.Printf("Progress:  %d%% (%d created, %d failed of %d)\n", task.Progress, task.PagesCreated, task.PagesFailed, task.Count)
	if task.ProfileURL != "" {
		fmt.Printf("Invites:   %s as %s (%d sent, %d failed)\n", task.ProfileURL, task.InviteRole, task.InvitesSent, task.InvitesFailed)
	}
	if task.ErrorMessage != "" {
		fmt.Printf("Error:     %s\n", task.ErrorMessage)
	}
	fmt.Printf("Created:   %s\n", task.CreatedAt.Format(time.RFC3339))
	if task.StartedAt != nil {
		fmt.Printf("Started:   %s\n", task.StartedAt.Format(time.RFC3339))
	}
	if task.CompletedAt != nil {
		fmt.Printf("Finished:  %s\n", task.CompletedAt.Format(time.RFC3339))
	}

	if len(task.Pages) == 0 {
		return nil
	}
	fmt.Println()
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SEQ\tPAGE ID\tNAME\tSTATUS\tURL / ERROR")
	for _, p := range task.Pages {
		detail := p.URL
		if p.Status == models.PageStatusFailed {
			detail = p.ErrorMessage
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", p.Sequence, truncateID(p.ID), truncate(p.Name, 40), p.Status, truncate(detail, 60))
	}
	return w.Flush()
}

func runTaskStart(cmd *cobra.Command, args []string) error {
	return startTask(args[0])
}

func startTask(id string) error {
	var task models.Task
	if err := apiPost("/tasks/"+id+"/start", nil, &task); err != nil {
		return err
	}
	fmt.Printf("Started task %s\n", id)
	if !taskWait {
		return nil
	}
	return waitTask(id)
}

// waitTask polls the task until it reaches a terminal status.
func waitTask(id string) error {
	last := -1
	for {
		var task models.Task
		if err := apiGet("/tasks/"+id, &task); err != nil {
			return err
		}
		if task.Progress != last {
			fmt.Printf("  %3d%%  %d created, %d failed\n", task.Progress, task.PagesCreated, task.PagesFailed)
			last = task.Progress
		}
		if task.Status.Terminal() {
			fmt.Printf("Task %s %s", id, task.Status)
			if task.ErrorMessage != "" {
				fmt.Printf(": %s", task.ErrorMessage)
			}
			fmt.Println()
			return nil
		}
		time.Sleep(time.Second)
	}
}

func runTaskCancel(cmd *cobra.Command, args []string) error {
	var task models.Task
	if err := apiPost("/tasks/"+args[0]+"/cancel", nil, &task); err != nil {
		return err
	}
	if task.Status == models.TaskStatusCancelled {
		fmt.Printf("Cancelled task %s\n", args[0])
	} else {
		fmt.Printf("Cancel requested for task %s; it stops before its next page\n", args[0])
	}
	return nil
}

func runTaskDelete(cmd *cobra.Command, args []string) error {
	if err := apiDelete("/tasks/" + args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted task %s\n", args[0])
	return nil
}

func runTaskLog(cmd *cobra.Command, args []string) error {
	var entries []models.PDREntry
	if err := apiGet("/tasks/"+args[0]+"/log", &entries); err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Println("No log entries found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TIME\tACTION\tOUTCOME\tDETAILS")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.Local().Format("2006-01-02 15:04:05"), e.Action, e.Outcome, e.Details)
	}
	return w.Flush()
}

// --- Helpers ---

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}

func truncateID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func joinRoles() string {
	roles := make([]string, len(models.Roles))
	for i, r := range models.Roles {
		roles[i] = string(r)
	}
	return strings.Join(roles, ", ")
}
