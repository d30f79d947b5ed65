package cli

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mkessler/fieldwork/internal/client"
	"github.com/mkessler/fieldwork/internal/jobs"
)

const pollInterval = time.Second

var watchCmd = &cobra.Command{
	Use:   "watch <job-id>",
	Short: "Follow a job's progress until it finishes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := apiClient.GetJob(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get job: %w", err)
		}
		return WatchJob(apiClient, job)
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

// counterRe extracts "x/y" counters from the free-form progress field.
var counterRe = regexp.MustCompile(`(\d+)\s*/\s*(\d+)`)

// progressFraction estimates completion from the job's progress string
// or its budget counters.
func progressFraction(job jobs.Snapshot) float64 {
	if m := counterRe.FindStringSubmatch(job.Progress); m != nil {
		cur, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		if total > 0 {
			return float64(cur) / float64(total)
		}
	}
	if job.BudgetMaxSearches+job.BudgetMaxPages > 0 {
		used := job.SearchesUsed + job.PagesLearned
		return float64(used) / float64(job.BudgetMaxSearches+job.BudgetMaxPages)
	}
	return 0
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job jobs.Snapshot
	err error
}

// watchModel is the bubbletea model for job progress.
type watchModel struct {
	client   *client.Client
	jobID    string
	job      jobs.Snapshot
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newWatchModel(c *client.Client, job jobs.Snapshot) watchModel {
	prog := progress.New(
		progress.WithDefaultBlend(),
		progress.WithWidth(40),
	)

	return watchModel{
		client:   c,
		jobID:    job.ID,
		job:      job,
		progress: prog,
		theme:    defaultTheme,
	}
}

// Init returns the initial command (start polling).
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(
		tickCmd(),
		m.progress.Init(),
	)
}

// Update handles messages and returns the updated model.
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("failed to fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job

		if m.job.Status.Terminal() {
			m.done = true
			if m.job.Error != "" {
				m.err = fmt.Errorf("%s", m.job.Error)
			}
			return m, tea.Quit
		}

		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the progress display.
func (m watchModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m watchModel) renderContent() string {
	if m.done {
		return m.finalView()
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Status))
	bar := m.progress.ViewAs(progressFraction(m.job))
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, m.job.Progress, hint)
}

func (m watchModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'fieldwork jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}

	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Job %s: %s\n", m.job.Status, m.err))
	}

	output := m.theme.completedStyle().Render("✓ Completed") + "\n"
	if m.job.Result != "" {
		output += fmt.Sprintf("\n%s\n", m.job.Result)
	}
	return output
}

// fetchJob fetches the current job status from the server.
// Runs as a command to avoid blocking Update().
func (m watchModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

// tickCmd returns a command that sends a tick after the poll interval.
func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// WatchJob follows a job until it finishes. In a terminal this renders
// an animated progress bar; otherwise it falls back to plain polling.
func WatchJob(c *client.Client, job jobs.Snapshot) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return watchPlain(c, job.ID)
	}

	p := tea.NewProgram(newWatchModel(c, job))
	finalModel, err := p.Run()
	if err != nil {
		return fmt.Errorf("progress UI error: %w", err)
	}

	if m, ok := finalModel.(watchModel); ok {
		// Ctrl+C means the job continues in background, not an error.
		if m.quitting {
			return nil
		}
		if m.err != nil {
			return m.err
		}
	}
	return nil
}

// watchPlain polls without a TUI, printing one line per status change.
func watchPlain(c *client.Client, id string) error {
	var last string
	for {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		job, err := c.GetJob(ctx, id)
		cancel()
		if err != nil {
			return fmt.Errorf("fetch job status: %w", err)
		}

		line := fmt.Sprintf("[%s] %s", job.Status, job.Progress)
		if line != last {
			fmt.Println(line)
			last = line
		}

		if job.Status.Terminal() {
			if job.Error != "" {
				return fmt.Errorf("%s", job.Error)
			}
			if job.Result != "" {
				fmt.Printf("\n%s\n", job.Result)
			}
			return nil
		}
		time.Sleep(pollInterval)
	}
}
