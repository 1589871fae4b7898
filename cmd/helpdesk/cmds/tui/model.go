// Package tui is the interactive chat view for a single ticket.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/go-go-golems/helpdesk/pkg/helpdesk"
	"github.com/go-go-golems/helpdesk/pkg/notify"
	"github.com/go-go-golems/helpdesk/pkg/stream"
)

const clipboardFadeDelay = 2 * time.Second

var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFFDF5")).Background(lipgloss.Color("62")).Padding(0, 1)
	selfStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	otherStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("170")).Bold(true)
	timeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	typingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AFAFAF")).Italic(true)
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	helpStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	paneStyle    = lipgloss.NewStyle().BorderStyle(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62"))
)

// Desk is what the view needs from the client facade.
type Desk interface {
	SelfID() string
	Conversation() (helpdesk.Conversation, bool)
	Messages() []helpdesk.Message
	Typers() []helpdesk.TypingSignal
	Banner() notify.BannerState
	Connected() bool
	Type(text string)
	Attach(path string) error
	ClearAttachment()
	Attachment() (stream.PendingUpload, bool)
	Send(ctx context.Context) (bool, error)
}

// Messages pushed into the program from outside.
type (
	RefreshMsg      struct{}
	NotificationMsg notify.Notification
	ClosedMsg       struct{}
)

type sentMsg struct{ err error }
type clipboardFadeMsg struct{}

type Model struct {
	ctx  context.Context
	desk Desk

	viewport viewport.Model
	input    textinput.Model
	spinner  spinner.Model

	width, height int
	ready         bool
	sending       bool
	closed        bool
	notice        string
	clipNotice    string
}

func NewModel(ctx context.Context, desk Desk) Model {
	in := textinput.New()
	in.Placeholder = "Type a message, /image PATH to attach, /clear to drop it"
	in.CharLimit = 4000
	in.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{ctx: ctx, desk: desk, input: in, spinner: sp, viewport: viewport.New(0, 0)}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.spinner.Tick)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.viewport.Width = msg.Width - 2
		m.viewport.Height = max(msg.Height-8, 3)
		m.input.Width = msg.Width - 4
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyCtrlY:
			if c, ok := m.desk.Conversation(); ok {
				if err := clipboard.WriteAll(c.ID); err == nil {
					m.clipNotice = c.ID
					cmds = append(cmds, tea.Tick(clipboardFadeDelay, func(time.Time) tea.Msg { return clipboardFadeMsg{} }))
				}
			}
			return m, tea.Batch(cmds...)
		case tea.KeyPgUp, tea.KeyPgDown, tea.KeyUp, tea.KeyDown:
			var cmd tea.Cmd
			m.viewport, cmd = m.viewport.Update(msg)
			return m, cmd
		case tea.KeyEnter:
			if m.closed || m.sending {
				return m, nil
			}
			text := strings.TrimSpace(m.input.Value())
			switch {
			case strings.HasPrefix(text, "/image "):
				if err := m.desk.Attach(strings.TrimSpace(strings.TrimPrefix(text, "/image "))); err != nil {
					m.notice = err.Error()
				} else {
					m.notice = ""
				}
				m.input.SetValue("")
				m.desk.Type("")
				return m, nil
			case text == "/clear":
				m.desk.ClearAttachment()
				m.input.SetValue("")
				m.desk.Type("")
				return m, nil
			}
			m.sending = true
			return m, tea.Batch(m.send(), m.spinner.Tick)
		}

	case sentMsg:
		m.sending = false
		if msg.err == nil {
			m.input.SetValue("")
			m.notice = ""
		}
		m.refresh()
		return m, nil

	case RefreshMsg:
		m.refresh()
		return m, nil

	case NotificationMsg:
		m.notice = msg.Title + ": " + msg.Description
		return m, nil

	case ClosedMsg:
		m.closed = true
		m.input.Blur()
		m.notice = "This ticket has been closed"
		return m, nil

	case clipboardFadeMsg:
		m.clipNotice = ""
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	before := m.input.Value()
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if v := m.input.Value(); v != before {
		m.desk.Type(v)
	}
	return m, tea.Batch(cmds...)
}

func (m Model) send() tea.Cmd {
	return func() tea.Msg {
		_, err := m.desk.Send(m.ctx)
		return sentMsg{err: err}
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()
	m.viewport.SetContent(m.renderMessages())
	if atBottom || m.viewport.TotalLineCount() <= m.viewport.Height {
		m.viewport.GotoBottom()
	}
}

func (m Model) renderMessages() string {
	self := m.desk.SelfID()
	var b strings.Builder
	for _, msg := range m.desk.Messages() {
		style := otherStyle
		if msg.Sender.ID == self {
			style = selfStyle
		}
		b.WriteString(style.Render(msg.Sender.DisplayName()))
		b.WriteString(" ")
		b.WriteString(timeStyle.Render(msg.SentAt.Local().Format("Jan 2 15:04")))
		b.WriteString("\n")
		if msg.Body != "" {
			b.WriteString(lipgloss.NewStyle().Width(max(m.viewport.Width-2, 10)).Render(msg.Body))
			b.WriteString("\n")
		}
		if msg.HasAttachment() {
			b.WriteString(timeStyle.Render("[image] " + msg.Attachment.URL))
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) View() string {
	if !m.ready {
		return "loading..."
	}
	title := "Ticket"
	if c, ok := m.desk.Conversation(); ok {
		title = fmt.Sprintf("%s · %s", c.Subject, c.Status.Label())
	}
	conn := successStyle.Render("● online")
	if !m.desk.Connected() {
		conn = errorStyle.Render("● offline")
	}
	header := titleStyle.Render(title) + "  " + conn

	var status []string
	if names := typingNames(m.desk.Typers()); names != "" {
		status = append(status, typingStyle.Render(names+" typing..."))
	}
	if att, ok := m.desk.Attachment(); ok {
		status = append(status, noticeStyle.Render("📎 "+att.Name))
	}
	if m.sending {
		status = append(status, m.spinner.View()+" sending")
	}
	banner := m.desk.Banner()
	if banner.Success != "" {
		status = append(status, successStyle.Render(banner.Success))
	}
	if banner.Error != "" {
		status = append(status, errorStyle.Render(banner.Error))
	}
	if m.notice != "" {
		status = append(status, noticeStyle.Render(m.notice))
	}

	help := "enter send · ↑/↓ scroll · ctrl+y copy id · esc quit"
	if m.clipNotice != "" {
		help += "  Copied: " + m.clipNotice
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		paneStyle.Render(m.viewport.View()),
		strings.Join(status, "  "),
		m.input.View(),
		helpStyle.Render(help),
	)
}

func typingNames(ts []helpdesk.TypingSignal) string {
	names := make([]string, 0, len(ts))
	for _, t := range ts {
		if t.Name != "" {
			names = append(names, t.Name)
		} else {
			names = append(names, t.UserID)
		}
	}
	return strings.Join(names, ", ")
}
