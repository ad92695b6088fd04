// callstorm-tui is a terminal dashboard for a running callstorm-d.
package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const (
	defaultDaemonURL = "http://localhost:8090"
	pollRate         = time.Second
)

// Styles
var (
	subtleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("99")).Width(18)
	valueStyle  = lipgloss.NewStyle().Bold(true)

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			Width(70)

	paneStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1).
			Width(70)

	stateStyles = map[string]lipgloss.Style{
		"INITIAL":     lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true),
		"ORIGINATING": lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		"STOPPED":     lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true),
	}
)

// Status mirrors the daemon's /v1/status payload. Declared locally so the
// TUI binary builds without the daemon's CGO dependencies.
type Status struct {
	State           string          `json:"state"`
	ActiveSessions  int             `json:"active_sessions"`
	ActiveJobs      int             `json:"active_jobs"`
	TotalOriginated uint64          `json:"total_originated"`
	Rate            float64         `json:"rate"`
	EffectiveRate   float64         `json:"effective_rate"`
	Limit           int             `json:"limit"`
	DurationS       float64         `json:"duration_s"`
	MaxOffered      uint64          `json:"max_offered"`
	PeriodS         float64         `json:"period_s"`
	AutoDuration    bool            `json:"auto_duration"`
	Behaviors       map[string]uint `json:"behaviors"`
}

type tickMsg time.Time

type dataMsg struct {
	status Status
	err    error
}

type actionMsg struct {
	err error
}

type model struct {
	daemonURL string
	spinner   spinner.Model
	gauge     progress.Model
	status    Status
	err       error
	ready     bool
	lastErr   error
}

func initialModel(daemonURL string) model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	g := progress.New(progress.WithDefaultGradient(), progress.WithWidth(50))

	return model{
		daemonURL: daemonURL,
		spinner:   s,
		gauge:     g,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(
		m.spinner.Tick,
		fetchStatus(m.daemonURL),
		tick(),
	)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		cmd  tea.Cmd
		cmds []tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "s":
			return m, postAction(m.daemonURL, "/v1/start")
		case "x":
			return m, postAction(m.daemonURL, "/v1/stop")
		case "h":
			return m, postAction(m.daemonURL, "/v1/hupall")
		}

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case tickMsg:
		cmds = append(cmds, fetchStatus(m.daemonURL), tick())

	case dataMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = msg.status
		}
		m.ready = true

	case actionMsg:
		m.lastErr = msg.err
		cmds = append(cmds, fetchStatus(m.daemonURL))
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	if !m.ready {
		return fmt.Sprintf("\n%s Connecting to %s...", m.spinner.View(), m.daemonURL)
	}

	st := m.status

	header := headerStyle.Render(fmt.Sprintf("%s callstorm", m.spinner.View()))

	stateStyle, ok := stateStyles[st.State]
	if !ok {
		stateStyle = valueStyle
	}

	var body strings.Builder
	row := func(label, value string) {
		body.WriteString(labelStyle.Render(label) + valueStyle.Render(value) + "\n")
	}
	body.WriteString(labelStyle.Render("State") + stateStyle.Render(st.State) + "\n")
	row("Rate", fmt.Sprintf("%.1f cps (effective %.1f)", st.Rate, st.EffectiveRate))
	row("Sessions", fmt.Sprintf("%d / %d", st.ActiveSessions, st.Limit))
	row("Pending jobs", fmt.Sprintf("%d", st.ActiveJobs))
	row("Total offered", formatQuota(st.TotalOriginated, st.MaxOffered))
	row("Hold time", fmt.Sprintf("%.1fs%s", st.DurationS, autoTag(st.AutoDuration)))
	row("Burst period", fmt.Sprintf("%.1fs", st.PeriodS))

	// concurrency gauge
	ratio := 0.0
	if st.Limit > 0 {
		ratio = float64(st.ActiveSessions) / float64(st.Limit)
		if ratio > 1 {
			ratio = 1
		}
	}
	body.WriteString("\n" + m.gauge.ViewAs(ratio) + "\n")

	if len(st.Behaviors) > 0 {
		body.WriteString("\n" + lipgloss.NewStyle().Bold(true).Underline(true).Render("Behaviors") + "\n")
		names := make([]string, 0, len(st.Behaviors))
		for name := range st.Behaviors {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			body.WriteString(fmt.Sprintf("• %s (weight %d)\n", name, st.Behaviors[name]))
		}
	}

	pane := paneStyle.Render(body.String())

	var statusLine string
	if m.err != nil {
		statusLine = errorStyle.Render(fmt.Sprintf("Offline: %v", m.err))
	} else {
		statusLine = okStyle.Render("Online • " + m.daemonURL)
	}
	if m.lastErr != nil {
		statusLine += "  " + errorStyle.Render(fmt.Sprintf("last action: %v", m.lastErr))
	}
	footer := subtleStyle.Render(fmt.Sprintf("\n%s\ns start • x stop • h hupall • q quit", statusLine))

	return lipgloss.JoinVertical(lipgloss.Left, header, pane, footer)
}

func formatQuota(total, quota uint64) string {
	if quota == 0 {
		return fmt.Sprintf("%d", total)
	}
	return fmt.Sprintf("%d / %d", total, quota)
}

func autoTag(auto bool) string {
	if auto {
		return " (auto)"
	}
	return ""
}

// Commands

func fetchStatus(daemonURL string) tea.Cmd {
	return func() tea.Msg {
		c := &http.Client{Timeout: 500 * time.Millisecond}
		resp, err := c.Get(daemonURL + "/v1/status")
		if err != nil {
			return dataMsg{err: err}
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return dataMsg{err: fmt.Errorf("status %d", resp.StatusCode)}
		}
		var st Status
		if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
			return dataMsg{err: err}
		}
		return dataMsg{status: st}
	}
}

func postAction(daemonURL, path string) tea.Cmd {
	return func() tea.Msg {
		c := &http.Client{Timeout: 2 * time.Second}
		resp, err := c.Post(daemonURL+path, "application/json", nil)
		if err != nil {
			return actionMsg{err: err}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return actionMsg{err: fmt.Errorf("%s returned %d", path, resp.StatusCode)}
		}
		return actionMsg{}
	}
}

func tick() tea.Cmd {
	return tea.Tick(pollRate, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func main() {
	daemonURL := defaultDaemonURL
	if v := os.Getenv("CALLSTORM_ENDPOINT"); v != "" {
		daemonURL = v
	}
	p := tea.NewProgram(initialModel(daemonURL), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
