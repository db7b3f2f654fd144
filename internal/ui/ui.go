package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/desertthunder/gphotos-backup/internal/tasks"
)

const recentLines = 6

// SyncRunner starts a sync and reports progress on the given channel. It must not close the channel.
type SyncRunner func(ctx context.Context, progress chan<- tasks.ProgressUpdate) (*tasks.SyncResult, error)

// SyncModel renders a running sync. The first q or ctrl+c cancels the sync cooperatively; a second one quits.
type SyncModel struct {
	ctx          context.Context
	cancel       context.CancelFunc
	run          SyncRunner
	progressChan chan tasks.ProgressUpdate
	doneChan     chan syncDoneMsg
	finished     chan struct{}
	final        syncDoneMsg
	spinner      spinner.Model
	bar          progress.Model
	help         help.Model
	keys         keyMap
	width        int
	state        tasks.State
	counters     tasks.SyncCounters
	step         int
	total        int
	recent       []string
	cancelling   bool
	done         bool
	result       *tasks.SyncResult
	err          error
}

// NewSyncModel creates a model that runs run when the program starts.
func NewSyncModel(ctx context.Context, run SyncRunner) *SyncModel {
	ctx, cancel := context.WithCancel(ctx)

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.title.UnsetMarginBottom()

	return &SyncModel{
		ctx:     ctx,
		cancel:  cancel,
		run:     run,
		spinner: s,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithWidth(40)),
		help:    help.New(),
		keys:    newKeyMap(),
	}
}

// Init starts the sync and the spinner.
func (m *SyncModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.start())
}

// Update handles incoming messages and updates the model state.
func (m *SyncModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		if w := msg.Width - 4; w > 10 && w < 80 {
			m.bar.Width = w
		}
		return m, nil

	case tea.KeyMsg:
		if !key.Matches(msg, m.keys.quit) {
			return m, nil
		}
		if m.done || m.cancelling {
			m.cancel()
			return m, tea.Quit
		}
		m.cancelling = true
		m.cancel()
		return m, nil

	case spinner.TickMsg:
		if m.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressMsg:
		m.apply(tasks.ProgressUpdate(msg))
		return m, m.waitForProgress()

	case syncDoneMsg:
		m.done = true
		m.result = msg.result
		m.err = msg.err
		if msg.result != nil {
			m.state = msg.result.State
			m.counters = msg.result.SyncCounters
		}
		return m, nil
	}

	return m, nil
}

func (m *SyncModel) apply(u tasks.ProgressUpdate) {
	switch data := u.Data.(type) {
	case tasks.State:
		m.state = data
	case tasks.SyncCounters:
		m.counters = data
	}

	if u.Phase == tasks.ProcessItems {
		m.step = u.Step
		m.total = u.Total
	}
	if u.Phase != tasks.ChangeState && u.Message != "" {
		m.recent = append(m.recent, u.Message)
		if len(m.recent) > recentLines {
			m.recent = m.recent[len(m.recent)-recentLines:]
		}
	}
}

// RunSync runs a sync under the progress view and returns once the sync has returned,
// even when the program exits first. The program installs no signal handler of its own: ctx is
// the only cancellation source, and cancelling it stops both the view and the sync.
func RunSync(ctx context.Context, run SyncRunner, opts ...tea.ProgramOption) (*tasks.SyncResult, error) {
	model := NewSyncModel(ctx, run)
	opts = append([]tea.ProgramOption{tea.WithContext(ctx), tea.WithoutSignalHandler()}, opts...)

	_, teaErr := tea.NewProgram(model, opts...).Run()
	if teaErr != nil {
		model.cancel()
	}

	result, err := model.Wait()
	if result == nil && err == nil && teaErr != nil {
		return nil, fmt.Errorf("error running TUI: %w", teaErr)
	}
	return result, err
}

// Result returns the outcome once the sync has finished.
func (m *SyncModel) Result() (*tasks.SyncResult, error) {
	return m.result, m.err
}

// Wait blocks until the sync goroutine returns, which may be after the program has quit.
// It returns nil values if the sync was never started.
func (m *SyncModel) Wait() (*tasks.SyncResult, error) {
	if m.finished == nil {
		return nil, nil
	}
	<-m.finished
	return m.final.result, m.final.err
}

// Done reports whether the sync goroutine has returned.
func (m *SyncModel) Done() bool {
	return m.done
}

func (m *SyncModel) start() tea.Cmd {
	m.progressChan = make(chan tasks.ProgressUpdate, 64)
	m.doneChan = make(chan syncDoneMsg, 1)
	m.finished = make(chan struct{})

	progressChan, doneChan := m.progressChan, m.doneChan
	go func() {
		result, err := m.run(m.ctx, progressChan)
		m.final = syncDoneMsg{result: result, err: err}
		close(m.finished)
		doneChan <- m.final
		close(progressChan)
	}()

	return m.waitForProgress()
}

func (m *SyncModel) waitForProgress() tea.Cmd {
	progressChan, doneChan := m.progressChan, m.doneChan
	return func() tea.Msg {
		update, ok := <-progressChan
		if !ok {
			return <-doneChan
		}
		return progressMsg(update)
	}
}

// View renders the UI based on the current sync state.
func (m *SyncModel) View() string {
	var b strings.Builder
	b.WriteString(styles.title.Render("Google Photos Backup"))
	b.WriteString("\n")

	if m.done {
		b.WriteString(m.renderResult())
	} else {
		label := m.state.Label()
		if m.cancelling {
			label = "Stopping after current item..."
		}
		fmt.Fprintf(&b, "%s %s\n\n", m.spinner.View(), label)
		if m.total > 0 {
			b.WriteString(m.bar.ViewAs(float64(m.step) / float64(m.total)))
			fmt.Fprintf(&b, " %d/%d\n\n", m.step, m.total)
		}
	}

	b.WriteString(m.renderCounters())
	b.WriteString("\n\n")
	for _, line := range m.recent {
		b.WriteString(styles.help.Render(line))
		b.WriteString("\n")
	}

	bindings := []key.Binding{m.keys.cancel}
	if m.done || m.cancelling {
		bindings = []key.Binding{m.keys.quit}
	}
	b.WriteString("\n")
	b.WriteString(m.help.ShortHelpView(bindings))
	return b.String()
}

func (m *SyncModel) renderCounters() string {
	c := m.counters
	return fmt.Sprintf("Albums %d • Pages %d • Downloaded %d (%s) • Skipped %d • Failed %d",
		c.Albums, c.Pages, c.Downloaded, humanize.Bytes(uint64(c.Bytes)), c.Skipped, c.Failed)
}

func (m *SyncModel) renderResult() string {
	switch {
	case m.err != nil:
		return styles.err.Render(fmt.Sprintf("✗ Sync failed: %v", m.err)) + "\n\n"
	case m.state == tasks.StateInterrupted:
		return styles.warn.Render("⚠ Sync interrupted. Run sync again to resume.") + "\n\n"
	case m.state == tasks.StateCompleted:
		return styles.ok.Render("✓ Sync complete") + "\n\n"
	default:
		return styles.warn.Render(m.state.Label()) + "\n\n"
	}
}
