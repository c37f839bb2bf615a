// ABOUTME: Bubbletea model rendering the live conversation view and handling input
// ABOUTME: Session views arrive on a subscription channel; slash commands drive clear, room, identity and export

package main

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389/triage-chat/internal/chat"
	"github.com/2389/triage-chat/internal/conversation"
	"github.com/2389/triage-chat/internal/protocol"
	"github.com/2389/triage-chat/internal/transcript"
	"github.com/2389/triage-chat/internal/transition"
	"github.com/2389/triage-chat/internal/transport"
)

const helpLine = "enter send · /attach <file> [text] · /location <text> · /room <id> · /user <id> · /export <file> · /clear · /quit"

// chatSession is the part of conversation.Session the UI drives.
type chatSession interface {
	Start(ctx context.Context) error
	Subscribe(ctx context.Context) <-chan conversation.View
	Submit(ctx context.Context, text string, attachments []protocol.Attachment) error
	SetLocation(location string)
	Clear(ctx context.Context) error
	SwitchRoom(ctx context.Context, room string) error
	SwitchIdentity(ctx context.Context, id transport.Identity) error
}

type viewMsg conversation.View

type startedMsg struct{ err error }

type resultMsg struct {
	status string
	err    error
}

type model struct {
	ctx      context.Context
	session  chatSession
	views    <-chan conversation.View
	view     conversation.View
	theme    uiTheme
	input    textinput.Model
	spinner  spinner.Model
	timeline viewport.Model

	width     int
	height    int
	status    string
	statusErr bool
}

func newModel(ctx context.Context, session chatSession) *model {
	in := textinput.New()
	in.Prompt = "❯ "
	in.Placeholder = "Describe your symptoms"
	in.CharLimit = 4000
	in.Focus()

	theme := newTheme()
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = theme.spinner

	vp := viewport.New(0, 0)
	vp.MouseWheelEnabled = true

	return &model{
		ctx:      ctx,
		session:  session,
		views:    session.Subscribe(ctx),
		theme:    theme,
		input:    in,
		spinner:  spin,
		timeline: vp,
		status:   "connecting...",
	}
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, textinput.Blink, waitView(m.views), m.start())
}

func (m *model) start() tea.Cmd {
	return func() tea.Msg {
		return startedMsg{err: m.session.Start(m.ctx)}
	}
}

func waitView(ch <-chan conversation.View) tea.Cmd {
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		v, ok := <-ch
		if !ok {
			return nil
		}
		return viewMsg(v)
	}
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "enter":
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			if cmd := m.handleLine(line); cmd != nil {
				cmds = append(cmds, cmd)
			}
			return m, tea.Batch(cmds...)
		case "pgup", "pgdown", "ctrl+u", "ctrl+d":
			var cmd tea.Cmd
			m.timeline, cmd = m.timeline.Update(msg)
			return m, cmd
		}

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.timeline, cmd = m.timeline.Update(msg)
		return m, cmd

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case viewMsg:
		atBottom := m.timeline.AtBottom() || m.view.Version == 0
		m.view = conversation.View(msg)
		m.refreshTimeline(atBottom)
		if m.view.Connected() && m.status == "connecting..." {
			m.status = ""
		}
		return m, waitView(m.views)

	case startedMsg:
		if msg.err != nil {
			m.setError(fmt.Errorf("connect: %w", msg.err))
		}
		return m, nil

	case resultMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else {
			m.status = msg.status
			m.statusErr = false
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

func (m *model) setError(err error) {
	m.status = err.Error()
	m.statusErr = true
}

// handleLine dispatches one line of input. Plain text is submitted; a
// leading slash selects a command.
func (m *model) handleLine(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return m.submit(line, nil)
	}

	name, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch name {
	case "/quit", "/exit":
		return tea.Quit
	case "/help":
		m.status, m.statusErr = helpLine, false
		return nil
	case "/clear":
		return m.run("chat cleared", func(ctx context.Context) error { return m.session.Clear(ctx) })
	case "/room":
		if arg == "" {
			m.setError(errors.New("usage: /room <id>"))
			return nil
		}
		return m.run("room "+arg, func(ctx context.Context) error { return m.session.SwitchRoom(ctx, arg) })
	case "/user":
		if arg == "" {
			m.setError(errors.New("usage: /user <id>"))
			return nil
		}
		id := transport.Identity{UserID: arg, SessionID: m.view.Identity.SessionID}
		return m.run("user "+arg, func(ctx context.Context) error { return m.session.SwitchIdentity(ctx, id) })
	case "/location":
		if arg == "" {
			m.setError(errors.New("usage: /location <text>"))
			return nil
		}
		m.session.SetLocation(arg)
		m.status, m.statusErr = "location will be sent with the next message", false
		return nil
	case "/attach":
		path, text, _ := strings.Cut(arg, " ")
		if path == "" {
			m.setError(errors.New("usage: /attach <file> [text]"))
			return nil
		}
		att, err := readAttachment(path)
		if err != nil {
			m.setError(err)
			return nil
		}
		return m.submit(strings.TrimSpace(text), []protocol.Attachment{att})
	case "/export":
		if arg == "" {
			m.setError(errors.New("usage: /export <file.html|file.md>"))
			return nil
		}
		if err := exportTranscript(arg, m.view); err != nil {
			m.setError(err)
			return nil
		}
		m.status, m.statusErr = "exported to "+arg, false
		return nil
	default:
		m.setError(fmt.Errorf("unknown command %s", name))
		return nil
	}
}

func (m *model) submit(text string, atts []protocol.Attachment) tea.Cmd {
	return m.run("", func(ctx context.Context) error { return m.session.Submit(ctx, text, atts) })
}

func (m *model) run(status string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return resultMsg{status: status, err: fn(ctx)}
	}
}

// readAttachment loads a file as a base64 data URL.
func readAttachment(path string) (protocol.Attachment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return protocol.Attachment{}, fmt.Errorf("reading attachment: %w", err)
	}
	mime := http.DetectContentType(data)
	kind := protocol.AttachmentImage
	if strings.HasPrefix(mime, "audio/") {
		kind = protocol.AttachmentAudio
	}
	return protocol.Attachment{
		Kind:     kind,
		Data:     "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data),
		MimeType: mime,
	}, nil
}

func exportTranscript(path string, v conversation.View) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export: %w", err)
	}
	title := "Triage chat " + v.Identity.SessionID
	if v.Room != "" {
		title = "Triage chat " + v.Room
	}
	if strings.EqualFold(filepath.Ext(path), ".md") {
		err = transcript.Markdown(f, title, v.Messages)
	} else {
		err = transcript.Render(f, title, v.Messages)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	return err
}

func (m *model) layout() {
	w := max(20, m.width-4)
	m.input.Width = max(10, w-4)
	m.timeline.Width = w - 2
	m.timeline.Height = max(3, m.height-lipgloss.Height(m.renderHeader())-lipgloss.Height(m.renderInput())-lipgloss.Height(m.renderFooter())-2)
	m.refreshTimeline(true)
}

func (m *model) refreshTimeline(follow bool) {
	m.timeline.SetContent(m.renderTimeline())
	if follow {
		m.timeline.GotoBottom()
	}
}

func (m *model) View() string {
	content := m.theme.panel.Width(max(20, m.width-4)).Render(m.timeline.View())
	out := lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), content, m.renderInput(), m.renderFooter())
	return m.theme.root.Render(out)
}

func (m *model) renderHeader() string {
	v := m.view
	parts := []string{
		m.theme.panelTitle.Render("Triage"),
		v.Identity.String(),
	}
	if v.Room != "" {
		parts = append(parts, "room "+v.Room)
	}
	parts = append(parts, m.connectionBadge(v.Connection))
	line := strings.Join(parts, "  ")
	switch {
	case v.Hint != nil:
		line += "\n" + m.theme.hint.Render("→ "+v.Hint.Name+": "+v.Hint.Description)
	case v.Role != transition.RoleNone:
		line += "\n" + m.theme.hint.Render("last agent: "+string(v.Role))
	}
	return m.theme.header.Width(max(20, m.width-4)).Render(line)
}

func (m *model) connectionBadge(s transport.State) string {
	switch s {
	case transport.StateOpen:
		return m.theme.online.Render("● " + s.String())
	case transport.StateConnecting:
		return m.theme.pending.Render("◌ " + s.String())
	default:
		return m.theme.offline.Render("○ " + s.String())
	}
}

func (m *model) renderInput() string {
	line := m.input.View()
	if m.view.Loading {
		label := "agent is responding"
		if m.view.Delegating {
			label = "consulting another agent"
		}
		line = m.spinner.View() + " " + m.theme.helpText.Render(label) + "\n" + line
	}
	return m.theme.inputPanel.Width(max(20, m.width-4)).Render(line)
}

func (m *model) renderFooter() string {
	switch {
	case m.status == "":
		return m.theme.helpText.Render(helpLine)
	case m.statusErr:
		return m.theme.errorStatus.Render(m.status)
	default:
		return m.theme.status.Render(m.status)
	}
}

func (m *model) renderTimeline() string {
	if len(m.view.Messages) == 0 {
		return m.theme.helpText.Render("No messages yet. Describe your symptoms to start.")
	}
	width := max(10, m.timeline.Width)
	var b strings.Builder
	for i, msg := range m.view.Messages {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(renderMessage(m.theme, msg, width))
	}
	return b.String()
}

func renderMessage(theme uiTheme, msg chat.Message, width int) string {
	label := theme.agentLabel
	if msg.Type == chat.TypeHuman {
		label = theme.humanLabel
	}
	head := label.Render(transcript.Label(msg)) + " " + theme.helpText.Render(msg.Timestamp.Local().Format("15:04"))
	body := lipgloss.NewStyle().Width(width).Render(msg.Content)

	lines := []string{head, body}
	for _, ref := range msg.References {
		lines = append(lines, theme.reference.Render("↳ "+ref.Filename+": chunk "+transcript.ChunkList(ref.Chunks)))
	}
	return strings.Join(lines, "\n")
}
