// Package tui is the interactive terminal monitor behind "aiprof record": it
// starts a live lecture, shows the input level and incoming alerts while it
// records, and displays the correction report once it is ready.
package tui

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/aiprof/internal/notify"
	"github.com/MrWong99/aiprof/pkg/lecture"
)

const (
	tickInterval  = 100 * time.Millisecond
	toastDuration = 5 * time.Second
	maxAlerts     = 200
)

// Recorder is the recording controller as seen by the monitor.
type Recorder interface {
	Start(ctx context.Context, cfg lecture.Config) (lecture.Session, error)
	Stop(ctx context.Context) (lecture.Session, bool, error)
	Current() (lecture.Session, bool)
	Level() float64
}

// Model is the root bubbletea model.
type Model struct {
	recorder Recorder
	events   <-chan notify.Notification
	config   lecture.Config
	now      func() time.Time

	session    lecture.Session
	hasSession bool
	level      float64
	alerts     []lecture.Alert

	toast      string
	toastSeq   int
	errMessage string
	accessible bool
	busy       bool

	width  int
	height int
}

// New returns a monitor that records one lecture with cfg. events is
// usually a notify.Hub subscription.
func New(r Recorder, events <-chan notify.Notification, cfg lecture.Config) Model {
	return Model{
		recorder: r,
		events:   events,
		config:   cfg,
		now:      time.Now,
	}
}

// Init starts recording and begins listening for notifications.
func (m Model) Init() tea.Cmd {
	return tea.Batch(startCmd(m.recorder, m.config), listenCmd(m.events), tickCmd())
}

func startCmd(r Recorder, cfg lecture.Config) tea.Cmd {
	return func() tea.Msg {
		s, err := r.Start(context.Background(), cfg)
		return startedMsg{Session: s, Err: err}
	}
}

func stopCmd(r Recorder) tea.Cmd {
	return func() tea.Msg {
		s, ok, err := r.Stop(context.Background())
		return stoppedMsg{Session: s, Stopped: ok, Err: err}
	}
}

func listenCmd(events <-chan notify.Notification) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		n, ok := <-events
		if !ok {
			return eventsClosedMsg{}
		}
		return notificationMsg{Notification: n}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return tickMsg{} })
}

func clearToastCmd(seq int) tea.Cmd {
	return tea.Tick(toastDuration, func(time.Time) tea.Msg { return clearToastMsg{seq: seq} })
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case startedMsg:
		m.busy = false
		if msg.Err != nil {
			m.errMessage = lecture.UserMessage(msg.Err)
			return m, nil
		}
		m.errMessage = ""
		m.session = msg.Session
		m.hasSession = true
		m.alerts = nil
		return m, nil

	case stoppedMsg:
		m.busy = false
		if msg.Err != nil {
			m.errMessage = lecture.UserMessage(msg.Err)
			return m, nil
		}
		if msg.Stopped {
			m.session = msg.Session
		}
		return m, nil

	case notificationMsg:
		return m.handleNotification(msg.Notification)

	case eventsClosedMsg:
		m.events = nil
		return m, nil

	case tickMsg:
		m.level = m.recorder.Level()
		if s, ok := m.recorder.Current(); ok {
			m.session = s
			m.hasSession = true
		}
		return m, tickCmd()

	case clearToastMsg:
		if msg.seq == m.toastSeq {
			m.toast = ""
		}
		return m, nil
	}
	return m, nil
}

func (m Model) handleNotification(n notify.Notification) (tea.Model, tea.Cmd) {
	next := listenCmd(m.events)
	if m.hasSession && n.SessionID != "" && n.SessionID != m.session.ID {
		return m, next
	}

	if n.Kind == notify.KindAlert && n.Alert != nil {
		m.alerts = append(m.alerts, *n.Alert)
		if len(m.alerts) > maxAlerts {
			m.alerts = slices.Delete(m.alerts, 0, len(m.alerts)-maxAlerts)
		}
	}
	if n.Kind == notify.KindError {
		m.errMessage = n.Text(m.accessible)
	}
	if s, ok := m.recorder.Current(); ok {
		m.session = s
		m.hasSession = true
	}

	m.toastSeq++
	m.toast = n.Text(m.accessible)
	return m, tea.Batch(next, clearToastCmd(m.toastSeq))
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "Q", "ctrl+c":
		return m, tea.Quit

	case " ", "s":
		if m.busy {
			return m, nil
		}
		m.busy = true
		if m.recording() {
			return m, stopCmd(m.recorder)
		}
		return m, startCmd(m.recorder, m.config)

	case "a":
		m.accessible = !m.accessible
		return m, nil
	}
	return m, nil
}

func (m Model) recording() bool {
	return m.hasSession && m.session.Status == lecture.StatusRecording
}

// View renders the monitor.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}

	divider := dividerStyle.Render(strings.Repeat("─", m.width))
	sections := []string{
		m.renderHeader(),
		m.renderStatus(),
		divider,
	}
	if m.session.Report != nil {
		sections = append(sections, m.renderReport())
	} else {
		sections = append(sections, m.renderAlerts())
	}
	sections = append(sections, divider)
	if m.toast != "" {
		sections = append(sections, toastStyle.Render(m.toast))
	}
	if m.errMessage != "" {
		sections = append(sections, errorStyle.Render("✖ "+m.errMessage))
	}
	sections = append(sections, m.renderFooter())
	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := titleStyle.Render("AI PROFESSOR")
	if !m.hasSession {
		return title
	}
	info := fmt.Sprintf(" %s · %s · %s", m.session.Title, m.session.Subject, m.session.Language)
	if m.session.Dialect != "" {
		info += "-" + m.session.Dialect
	}
	return title + dimStyle.Render(info)
}

func (m Model) renderStatus() string {
	if !m.hasSession {
		return dimStyle.Render("○ IDLE")
	}

	var dot string
	switch m.session.Status {
	case lecture.StatusRecording:
		dot = recordingStyle.Render("● REC")
	case lecture.StatusProcessing:
		dot = processingStyle.Render("⟳ PROCESSING")
	case lecture.StatusCompleted:
		dot = completedStyle.Render("✔ COMPLETED")
	case lecture.StatusError:
		dot = errorStyle.Render("✖ ERROR")
	}

	elapsed := m.session.Duration(m.now()).Truncate(time.Second)
	out := dot + dimStyle.Render("  "+formatDuration(elapsed))
	if m.session.Status == lecture.StatusRecording {
		out += "  " + renderLevelMeter(m.level)
		if m.session.RealTimeMonitoring {
			out += dimStyle.Render("  AI monitoring")
		}
	}
	return out
}

func renderLevelMeter(level float64) string {
	const barLen = 12
	filled := min(int(level*barLen), barLen)

	var b strings.Builder
	for i := range barLen {
		switch {
		case i >= filled:
			b.WriteString(levelEmptyStyle.Render("░"))
		case float64(i)/barLen > 0.6:
			b.WriteString(levelHighStyle.Render("█"))
		default:
			b.WriteString(levelLowStyle.Render("█"))
		}
	}
	return dimStyle.Render("MIC ") + b.String()
}

func (m Model) renderAlerts() string {
	lines := []string{headingStyle.Render(fmt.Sprintf("Alerts (%d)", len(m.alerts)))}
	if len(m.alerts) == 0 {
		return strings.Join(append(lines, dimStyle.Render("  none yet")), "\n")
	}

	visible := m.alerts
	if limit := m.alertRows(); len(visible) > limit {
		visible = visible[len(visible)-limit:]
	}
	for _, a := range visible {
		style, ok := severityStyles[string(a.Severity)]
		if !ok {
			style = dimStyle
		}
		ts := a.Timestamp.Sub(m.session.StartTime).Truncate(time.Second)
		lines = append(lines, fmt.Sprintf("  %s %s %s",
			dimStyle.Render(formatDuration(ts)),
			style.Render(fmt.Sprintf("%-8s %-15s", a.Severity, a.Type)),
			a.SuggestedCorrection,
		))
	}
	return strings.Join(lines, "\n")
}

func (m Model) alertRows() int {
	if m.height == 0 {
		return 10
	}
	// header, status, two dividers, toast, error, footer, heading
	return max(3, m.height-8)
}

func (m Model) renderReport() string {
	r := m.session.Report
	lines := []string{
		headingStyle.Render("Correction report"),
		fmt.Sprintf("  Total issues:    %d", r.TotalIssues),
		fmt.Sprintf("  Overall quality: %s", r.OverallQuality),
	}
	for _, t := range lecture.AlertTypes {
		if n := r.IssuesByType[t]; n > 0 {
			lines = append(lines, fmt.Sprintf("    %-16s %d", t, n))
		}
	}
	lines = append(lines, headingStyle.Render("Recommendations"))
	for _, rec := range r.Recommendations {
		lines = append(lines, "  • "+rec)
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderFooter() string {
	action := "start"
	if m.recording() {
		action = "stop"
	}
	key := func(k, desc string) string {
		return footerKeyStyle.Render(k) + " " + footerDescStyle.Render(desc)
	}
	return strings.Join([]string{
		key("space", action),
		key("a", "accessible text"),
		key("q", "quit"),
	}, "  ")
}

func formatDuration(d time.Duration) string {
	d = max(d, 0)
	h := int(d.Hours())
	mnt := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, mnt, s)
	}
	return fmt.Sprintf("%02d:%02d", mnt, s)
}
