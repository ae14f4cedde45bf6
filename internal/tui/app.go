// Package tui provides the interactive terminal dashboard for pageforge.
package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/fentz26/pageforge/internal/efficiency"
	"github.com/fentz26/pageforge/internal/models"
)

var (
	// Colors
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#6366F1")
	successColor   = lipgloss.Color("#10B981")
	warningColor   = lipgloss.Color("#F59E0B")
	errorColor     = lipgloss.Color("#EF4444")
	mutedColor     = lipgloss.Color("#6B7280")
	fgColor        = lipgloss.Color("#F9FAFB")
	cyanColor      = lipgloss.Color("#06B6D4")

	// Styles
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(primaryColor).
			Padding(0, 1)

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("#374151")).
			Foreground(fgColor).
			Padding(0, 1)

	inputBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(primaryColor).
			Padding(0, 1)

	taskItemStyle = lipgloss.NewStyle().
			Padding(0, 2)

	selectedStyle = lipgloss.NewStyle().
			Background(primaryColor).
			Foreground(fgColor).
			Bold(true).
			Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(mutedColor).
			Italic(true)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(mutedColor).
			Padding(0, 1)

	onlineStyle = lipgloss.NewStyle().
			Foreground(successColor).
			Bold(true)

	offlineStyle = lipgloss.NewStyle().
			Foreground(errorColor)
)

type mode int

const (
	modeList mode = iota
	modeDetail
	modeLog
	modeReport
)

// refreshInterval is how often the dashboard polls the daemon.
const refreshInterval = 2 * time.Second

// App is the main TUI application model.
type App struct {
	client       *Client
	tasks        []models.Task
	selectedIdx  int
	input        textinput.Model
	bar          progress.Model
	width        int
	height       int
	mode         mode
	currentTask  *TaskDetail
	log          []models.PDREntry
	report       *efficiency.Report
	message      string
	filterIdx    int
	loading      bool
	daemonOnline bool
	suggestions  *Suggestions
}

var filters = []models.TaskStatus{"", models.TaskStatusPending, models.TaskStatusRunning, models.TaskStatusCompleted, models.TaskStatusFailed, models.TaskStatusCancelled}
var filterNames = []string{"ALL", "PENDING", "RUNNING", "DONE", "FAILED", "CANCELLED"}

// New creates a new TUI application.
func New(apiAddr string) *App {
	ti := textinput.New()
	ti.Placeholder = "Type: add <count> <name> [profile url] | start | cancel | delete | report | /"
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 80

	return &App{
		client:      NewClient(apiAddr),
		input:       ti,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(20)),
		mode:        modeList,
		suggestions: NewSuggestions(),
	}
}

// Run starts the TUI application.
func (a *App) Run() error {
	p := tea.NewProgram(a, tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// Init implements tea.Model
func (a *App) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		a.fetchTasks(),
		a.checkDaemon(),
		a.tickCmd(),
	)
}

// Update implements tea.Model
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit

		case "esc":
			if a.mode != modeList {
				a.mode = modeList
				a.currentTask = nil
				return a, a.fetchTasks()
			}

		case "up":
			if a.suggestions.IsVisible() {
				a.suggestions.Prev()
			} else if a.mode == modeList && a.selectedIdx > 0 {
				a.selectedIdx--
			}
			return a, nil

		case "down":
			if a.suggestions.IsVisible() {
				a.suggestions.Next()
			} else if a.mode == modeList && a.selectedIdx < len(a.tasks)-1 {
				a.selectedIdx++
			}
			return a, nil

		case "tab":
			if a.suggestions.IsVisible() {
				a.acceptSuggestion()
				return a, nil
			}
			if a.mode == modeList {
				a.filterIdx = (a.filterIdx + 1) % len(filters)
				return a, a.fetchTasks()
			}

		case "enter":
			if a.suggestions.IsVisible() {
				a.acceptSuggestion()
				return a, nil
			}
			cmd := strings.TrimSpace(a.input.Value())
			if cmd != "" {
				a.input.SetValue("")
				a.suggestions.Update("")
				return a, a.executeCommand(cmd)
			}
			if task := a.selected(); a.mode == modeList && task != nil {
				a.mode = modeDetail
				return a, a.fetchTaskDetail(task.ID)
			}
		}

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = msg.Width - 4

	case tasksLoadedMsg:
		a.loading = false
		a.daemonOnline = true
		a.tasks = msg.tasks
		if a.selectedIdx >= len(a.tasks) {
			a.selectedIdx = max(0, len(a.tasks)-1)
		}

	case taskDetailLoadedMsg:
		a.currentTask = msg.task

	case taskLogLoadedMsg:
		a.log = msg.entries

	case reportLoadedMsg:
		a.report = msg.report

	case daemonStatusMsg:
		a.daemonOnline = msg.online

	case tickMsg:
		cmds = append(cmds, a.tickCmd(), a.refresh())

	case commandResultMsg:
		a.message = msg.message
		return a, a.refresh()

	case errMsg:
		a.loading = false
		a.message = "Error: " + msg.err.Error()
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	a.suggestions.Update(a.input.Value())
	if strings.HasPrefix(a.input.Value(), "@") {
		a.suggestions.SetTasks(a.tasks)
	}

	return a, tea.Batch(cmds...)
}

func (a *App) acceptSuggestion() {
	if selected := a.suggestions.Selected(); selected != nil {
		value := selected.Text + " "
		if selected.Type == "task" {
			value = "@" + selected.Text
		}
		a.input.SetValue(value)
		a.input.CursorEnd()
		a.suggestions.Update("")
	}
}

func (a *App) selected() *models.Task {
	if a.selectedIdx < 0 || a.selectedIdx >= len(a.tasks) {
		return nil
	}
	return &a.tasks[a.selectedIdx]
}

// View implements tea.Model
func (a *App) View() string {
	var b strings.Builder

	daemonStatus := onlineStyle.Render("● DAEMON")
	if !a.daemonOnline {
		daemonStatus = offlineStyle.Render("○ DAEMON")
	}
	header := titleStyle.Render("PAGEFORGE") + "  " + daemonStatus
	header += "  " + lipgloss.NewStyle().Foreground(cyanColor).Render(fmt.Sprintf("[%d tasks]", len(a.tasks)))

	b.WriteString(header + "\n")
	b.WriteString(strings.Repeat("─", max(a.width, 10)) + "\n")

	contentHeight := max(a.height-8, 5)

	switch a.mode {
	case modeList:
		filterLabel := fmt.Sprintf(" Filter: [%s]", filterNames[a.filterIdx])
		b.WriteString(lipgloss.NewStyle().Foreground(mutedColor).Render(filterLabel) + "\n")
		b.WriteString(a.renderTaskList(contentHeight - 1))
	case modeDetail:
		b.WriteString(a.renderTaskDetail(contentHeight))
	case modeLog:
		b.WriteString(a.renderLog(contentHeight))
	case modeReport:
		b.WriteString(a.renderReport())
	}

	if a.message != "" {
		msgStyle := lipgloss.NewStyle().Foreground(successColor)
		if strings.HasPrefix(a.message, "Error") {
			msgStyle = lipgloss.NewStyle().Foreground(errorColor)
		}
		b.WriteString("\n" + msgStyle.Render(a.message))
	} else {
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(inputBoxStyle.Render(a.input.View()))
	if a.suggestions.IsVisible() {
		b.WriteString("\n")
		b.WriteString(a.suggestions.Render(a.width))
	}
	b.WriteString("\n")

	var status string
	switch a.mode {
	case modeList:
		status = fmt.Sprintf(" Tasks: %d | ↑↓:nav | Enter:details | Tab:filter | /:commands | @:tasks | Ctrl+C:quit", len(a.tasks))
	default:
		status = " Esc:back | Enter:command | Ctrl+C:quit"
	}
	b.WriteString(statusBarStyle.Width(max(a.width, 10)).Render(status))

	return b.String()
}

func (a *App) renderTaskList(height int) string {
	if a.loading && len(a.tasks) == 0 {
		return "\n  Loading tasks...\n"
	}
	if len(a.tasks) == 0 {
		return "\n  No tasks found. Type: add <count> <name> to create one.\n"
	}

	lines := make([]string, 0, len(a.tasks))
	for i, task := range a.tasks {
		summary := fmt.Sprintf("%-24s %s %3d%%  %d/%d ok",
			truncate(task.BaseName, 24),
			a.bar.ViewAs(float64(task.Progress)/100),
			task.Progress,
			task.PagesCreated,
			task.Count,
		)
		if i == a.selectedIdx {
			lines = append(lines, selectedStyle.Render(fmt.Sprintf("▶ %s  %s", statusIcon(task.Status), summary)))
		} else {
			lines = append(lines, taskItemStyle.Render(fmt.Sprintf("  %s  %s", formatStatus(task.Status), summary)))
		}
	}

	if len(lines) > height {
		start := max(a.selectedIdx-height/2, 0)
		end := start + height
		if end > len(lines) {
			end = len(lines)
			start = max(0, end-height)
		}
		lines = lines[start:end]
	}

	return strings.Join(lines, "\n")
}

func (a *App) renderTaskDetail(height int) string {
	if a.currentTask == nil {
		return "\n  Loading...\n"
	}

	var b strings.Builder
	t := a.currentTask

	b.WriteString(fmt.Sprintf("\n  %s\n", lipgloss.NewStyle().Bold(true).Render(t.BaseName)))
	b.WriteString(fmt.Sprintf("  ID: %s\n", t.ID))
	b.WriteString(fmt.Sprintf("  Status: %s", formatStatus(t.Status)))
	if t.CancelRequested {
		b.WriteString(lipgloss.NewStyle().Foreground(warningColor).Render("  (cancel requested)"))
	}
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  Progress: %s %d%%\n", a.bar.ViewAs(float64(t.Progress)/100), t.Progress))
	b.WriteString(fmt.Sprintf("  Pages: %d created, %d failed of %d\n", t.PagesCreated, t.PagesFailed, t.Count))
	if t.ProfileURL != "" {
		b.WriteString(fmt.Sprintf("  Invites: %d sent, %d failed → %s\n", t.InvitesSent, t.InvitesFailed, t.ProfileURL))
	}
	if t.ErrorMessage != "" {
		b.WriteString(lipgloss.NewStyle().Foreground(errorColor).Render("  Error: "+t.ErrorMessage) + "\n")
	}

	if len(t.Pages) > 0 {
		b.WriteString("\n  Pages:\n")
		limit := max(height-10, 3)
		for i, p := range t.Pages {
			if i >= limit {
				b.WriteString(helpStyle.Render(fmt.Sprintf("    ... and %d more", len(t.Pages)-limit)) + "\n")
				break
			}
			line := fmt.Sprintf("    %3d %s %s", p.Sequence, formatPageStatus(p.Status), p.Name)
			if p.URL != "" {
				line += " " + helpStyle.Render(p.URL)
			} else if p.ErrorMessage != "" {
				line += " " + lipgloss.NewStyle().Foreground(errorColor).Render(p.ErrorMessage)
			}
			b.WriteString(line + "\n")
		}
	}

	return b.String()
}

func (a *App) renderLog(height int) string {
	var b strings.Builder
	b.WriteString("\n  Task log\n")
	b.WriteString("  " + strings.Repeat("─", 50) + "\n")
	if len(a.log) == 0 {
		b.WriteString("  No entries.\n")
		return b.String()
	}
	entries := a.log
	if len(entries) > height-3 && height > 3 {
		entries = entries[len(entries)-(height-3):]
	}
	for _, e := range entries {
		outcome := lipgloss.NewStyle().Foreground(successColor).Render(e.Outcome)
		if e.Outcome != "success" {
			outcome = lipgloss.NewStyle().Foreground(errorColor).Render(e.Outcome)
		}
		b.WriteString(fmt.Sprintf("  %s  %-16s %s  %s\n", e.Timestamp.Local().Format("15:04:05"), e.Action, outcome, e.Details))
	}
	return b.String()
}

func (a *App) renderReport() string {
	var b strings.Builder
	b.WriteString("\n  Efficiency report\n")
	b.WriteString("  " + strings.Repeat("─", 50) + "\n\n")
	r := a.report
	if r == nil {
		b.WriteString("  Loading...\n")
		return b.String()
	}
	b.WriteString(fmt.Sprintf("  Tasks:          %d\n", r.TotalTasks))
	b.WriteString(fmt.Sprintf("  Pages:          %d (%d created, %d failed)\n", r.TotalPages, r.PagesCreated, r.PagesFailed))
	b.WriteString(fmt.Sprintf("  Success rate:   %s %.1f%%\n", a.bar.ViewAs(r.SuccessRate/100), r.SuccessRate))
	b.WriteString(fmt.Sprintf("  Pages per task: %.2f\n", r.AvgPagesPerTask))
	b.WriteString(fmt.Sprintf("  Invites:        %d sent, %d failed\n", r.InvitesSent, r.InvitesFailed))
	if len(r.TasksByStatus) > 0 {
		b.WriteString("\n  By status:\n")
		for _, s := range models.TaskStatuses {
			if n := r.TasksByStatus[s]; n > 0 {
				b.WriteString(fmt.Sprintf("    %s %d\n", formatStatus(s), n))
			}
		}
	}
	return b.String()
}

func formatStatus(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return lipgloss.NewStyle().Foreground(warningColor).Render("○ PENDING  ")
	case models.TaskStatusRunning:
		return lipgloss.NewStyle().Foreground(primaryColor).Render("◑ RUNNING  ")
	case models.TaskStatusCompleted:
		return lipgloss.NewStyle().Foreground(successColor).Render("● DONE     ")
	case models.TaskStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗ FAILED   ")
	case models.TaskStatusCancelled:
		return lipgloss.NewStyle().Foreground(mutedColor).Render("⊘ CANCELLED")
	default:
		return string(status)
	}
}

func statusIcon(status models.TaskStatus) string {
	switch status {
	case models.TaskStatusPending:
		return "○"
	case models.TaskStatusRunning:
		return "◑"
	case models.TaskStatusCompleted:
		return "●"
	case models.TaskStatusFailed:
		return "✗"
	case models.TaskStatusCancelled:
		return "⊘"
	default:
		return "?"
	}
}

func formatPageStatus(status models.PageStatus) string {
	switch status {
	case models.PageStatusCreated:
		return lipgloss.NewStyle().Foreground(successColor).Render("✓")
	case models.PageStatusFailed:
		return lipgloss.NewStyle().Foreground(errorColor).Render("✗")
	default:
		return lipgloss.NewStyle().Foreground(warningColor).Render("…")
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func (a *App) refresh() tea.Cmd {
	switch a.mode {
	case modeDetail:
		if a.currentTask != nil {
			return a.fetchTaskDetail(a.currentTask.ID)
		}
	case modeReport:
		return a.fetchReport()
	case modeLog:
		return nil
	}
	return a.fetchTasks()
}

func (a *App) fetchTasks() tea.Cmd {
	a.loading = true
	status := string(filters[a.filterIdx])
	return func() tea.Msg {
		tasks, err := a.client.ListTasks(status)
		if err != nil {
			return errMsg{err}
		}
		return tasksLoadedMsg{tasks}
	}
}

func (a *App) fetchTaskDetail(taskID string) tea.Cmd {
	return func() tea.Msg {
		task, err := a.client.GetTask(taskID)
		if err != nil {
			return errMsg{err}
		}
		return taskDetailLoadedMsg{task}
	}
}

func (a *App) fetchLog(taskID string) tea.Cmd {
	return func() tea.Msg {
		entries, err := a.client.GetTaskLog(taskID)
		if err != nil {
			return errMsg{err}
		}
		return taskLogLoadedMsg{entries}
	}
}

func (a *App) fetchReport() tea.Cmd {
	return func() tea.Msg {
		r, err := a.client.Report()
		if err != nil {
			return errMsg{err}
		}
		return reportLoadedMsg{r}
	}
}

func (a *App) checkDaemon() tea.Cmd {
	return func() tea.Msg {
		ok, err := a.client.CheckHealth()
		return daemonStatusMsg{online: err == nil && ok}
	}
}

func (a *App) tickCmd() tea.Cmd {
	return tea.Tick(refreshInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// targetID is the task a command acts on: the open detail view, else the
// list selection.
func (a *App) targetID() string {
	if a.mode == modeDetail && a.currentTask != nil {
		return a.currentTask.ID
	}
	if t := a.selected(); t != nil {
		return t.ID
	}
	return ""
}

func (a *App) executeCommand(input string) tea.Cmd {
	input = strings.TrimPrefix(input, "/")
	if strings.HasPrefix(input, "@") {
		id := strings.TrimSpace(strings.TrimPrefix(input, "@"))
		if id == "" {
			return nil
		}
		a.mode = modeDetail
		return a.fetchTaskDetail(id)
	}

	parts := strings.Fields(input)
	if len(parts) == 0 {
		return nil
	}
	cmd, args := parts[0], parts[1:]
	taskID := a.targetID()

	switch cmd {
	case "q", "quit", "exit":
		return tea.Quit
	case "report":
		a.mode = modeReport
		return a.fetchReport()
	case "log":
		if taskID == "" {
			return result("No task selected")
		}
		a.mode = modeLog
		a.log = nil
		return a.fetchLog(taskID)
	}

	return func() tea.Msg {
		switch cmd {
		case "add":
			count, name, profile, err := parseAdd(args)
			if err != nil {
				return commandResultMsg{err.Error()}
			}
			id, err := a.client.SubmitTask(name, count, profile)
			if err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ Submitted task %s", shortID(id))}
		case "start", "cancel", "delete":
			if taskID == "" {
				return commandResultMsg{"No task selected"}
			}
			var err error
			switch cmd {
			case "start":
				err = a.client.StartTask(taskID)
			case "cancel":
				err = a.client.CancelTask(taskID)
			default:
				err = a.client.DeleteTask(taskID)
			}
			if err != nil {
				return errMsg{err}
			}
			return commandResultMsg{fmt.Sprintf("✓ %s %s", cmd, shortID(taskID))}
		default:
			return commandResultMsg{fmt.Sprintf("Unknown command: %s", cmd)}
		}
	}
}

// parseAdd parses "add <count> <base name...> [profile url]". A trailing
// http(s) argument is taken as the invite profile.
func parseAdd(args []string) (count int, name, profile string, err error) {
	if len(args) < 2 {
		return 0, "", "", fmt.Errorf("Usage: add <count> <base name> [profile url]")
	}
	count, err = strconv.Atoi(args[0])
	if err != nil {
		return 0, "", "", fmt.Errorf("count must be a number, got %q", args[0])
	}
	rest := args[1:]
	if last := rest[len(rest)-1]; len(rest) > 1 && (strings.HasPrefix(last, "http://") || strings.HasPrefix(last, "https://")) {
		profile = last
		rest = rest[:len(rest)-1]
	}
	return count, strings.Join(rest, " "), profile, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func result(message string) tea.Cmd {
	return func() tea.Msg { return commandResultMsg{message} }
}

type commandResultMsg struct {
	message string
}

type errMsg struct {
	err error
}

type tasksLoadedMsg struct {
	tasks []models.Task
}

type taskDetailLoadedMsg struct {
	task *TaskDetail
}

type taskLogLoadedMsg struct {
	entries []models.PDREntry
}

type reportLoadedMsg struct {
	report *efficiency.Report
}

type daemonStatusMsg struct {
	online bool
}

type tickMsg time.Time
