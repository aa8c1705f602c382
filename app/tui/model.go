package main

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/acarl005/stripansi"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/knipferrc/teacup/code"
	"github.com/noelzubin/notes_switcher/editor"
	"github.com/noelzubin/notes_switcher/search"
	"github.com/noelzubin/notes_switcher/search/suggester"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

var (
	ListStyle   = lipgloss.NewStyle().MarginTop(1)
	StatusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).MarginLeft(2)
)

var whitespace = regexp.MustCompile(`\s{2,}|\t+`)

type mode int

const (
	modeNotes mode = iota
	modeImages
)

// Main app model for bubbletea
type Model struct {
	width     int                   // width of terminal
	height    int                   // height of terminal
	preview   *code.Bubble          // the preview widget model
	list      list.Model            // the list widget model
	textInput textinput.Model       // the input search widget model
	ctrl      *suggester.Controller // turns input into suggestions
	updates   *mailbox              // suggestions published by ctrl
	editor    editor.Editor         // for opening up external editor.
	absPath   func(p string) string // vault path to disk path
	refresh   func(ctx context.Context) error
	mode      mode
	showPath  bool
	status    string // last error shown under the list
	picked    string // image path chosen in image mode
	logger    *zap.Logger
}

// Options wires a Model to the rest of the program.
type Options struct {
	Controller *suggester.Controller
	Editor     editor.Editor
	AbsPath    func(p string) string
	Refresh    func(ctx context.Context) error // ctrl+r, may be nil
	Mode       mode
	ShowPath   bool
	Logger     *zap.Logger
}

// Create a new model for the app
func New(options Options) *Model {
	updates := newMailbox()
	options.Controller.OnUpdate(updates.put)
	logger := options.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Model{
		list:      create_list_model(),
		textInput: create_text_input(),
		ctrl:      options.Controller,
		updates:   updates,
		editor:    options.Editor,
		absPath:   options.AbsPath,
		refresh:   options.Refresh,
		mode:      options.Mode,
		showPath:  options.ShowPath,
		logger:    logger,
	}
}

func (m *Model) setListSize() {
	width := m.width
	height := m.height

	// If preview is open take half width
	if m.preview != nil {
		width = m.width / 2
	}

	m.list.SetSize(width, height-3)
}

func (m *Model) setPreviewSize() {
	if m.preview != nil {
		m.preview.SetSize(m.width/2, m.height)
	}
}

func (m *Model) updateSize(width, height int) {
	m.height = height
	m.width = width

	m.setListSize()
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(tea.EnterAltScreen, textinput.Blink, m.updates.wait())
}

// Suggestion implements list.Item for one search result.
type Suggestion struct {
	result search.Result
	label  string
	detail string
}

func (s Suggestion) Title() string       { return s.label }
func (s Suggestion) Description() string { return s.detail }
func (s Suggestion) FilterValue() string { return "" }

func newSuggestion(r search.Result, query string, showPath bool) Suggestion {
	item := r.Item
	var kind string
	switch {
	case item.IsCreated:
		kind = string(item.FileType)
	case item.IsUnresolved:
		kind = "unresolved link, enter to create"
	default:
		kind = "new note, enter to create"
	}
	detail := kind
	if showPath {
		detail = kind + " · " + item.Path
	}
	label := search.BestDisplayLabel(r, query)
	if label != item.Basename {
		label = fmt.Sprintf("%s → %s", label, item.Basename)
	}
	return Suggestion{result: r, label: formatLabel(label), detail: formatLabel(detail)}
}

// Formats a label for a single list row
// removes ansi codes and collapses whitespace.
func formatLabel(content string) string {
	s := stripansi.Strip(content)
	s = strings.ReplaceAll(s, "\n", " ↵ ")
	return whitespace.ReplaceAllString(s, " ")
}

// suggestionsMsg carries the controller state to the model.
type suggestionsMsg suggester.Update

// commitDoneMsg is sent when a commit finished. committed is false when
// nothing was selected.
type commitDoneMsg struct {
	committed bool
	err       error
}

// refreshDoneMsg is sent when a manual refresh finished.
type refreshDoneMsg struct {
	err error
}

// The update fn for the bubbletea model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case suggestionsMsg:
		m.showSuggestions(suggester.Update(msg))
		return m, m.updates.wait()
	case commitDoneMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
			return m, nil
		}
		m.status = ""
		m.textInput.SetValue(m.ctrl.Input())
		m.textInput.CursorEnd()
		if m.mode == modeImages && msg.committed {
			m.picked = m.ctrl.Input()
			return m, tea.Quit
		}
		return m, nil
	case refreshDoneMsg:
		if msg.err != nil {
			m.status = msg.err.Error()
		}
		return m, nil
	case editor.EditingFinished:
		if msg.Err != nil {
			m.status = msg.Err.Error()
		}
	case tea.KeyMsg:
		// Keybindings:
		// Up/Ctrl+P, Down/Ctrl+N - move in the list
		// Tab - use the input as a type or extension filter
		// Backspace on empty input - drop the filter
		// Enter - open or create the selected note
		// Ctrl+O - same in a new tab
		// Ctrl+S - create a note named after the input
		// Ctrl+V - toggle preview for the selected note
		// Ctrl+K - Preview lineup
		// Ctrl+J - Preview line down
		// Ctrl+R - refresh the index
		// Esc - close preview, then suggestions
		// Ctrl+C - quit the application
		switch msg.String() {
		case "down", "ctrl+n":
			m.ctrl.Next()
			return m, nil
		case "up", "ctrl+p":
			m.ctrl.Prev()
			return m, nil
		case "tab":
			if m.ctrl.ActivateFilter() {
				m.textInput.SetValue("")
				m.textInput.Prompt = fmt.Sprintf("Search [%s]:", m.ctrl.Filter())
			}
			return m, nil
		case "backspace":
			if m.textInput.Value() == "" && m.ctrl.Backspace() {
				m.textInput.Prompt = "Search:"
				return m, nil
			}
		case "enter":
			return m, m.commit(false, false)
		case "ctrl+o":
			return m, m.commit(true, false)
		case "ctrl+s":
			if m.mode == modeImages {
				return m, nil
			}
			return m, m.commit(false, true)
		case "ctrl+v":
			if m.preview != nil {
				m.preview = nil
				break
			}
			if s, ok := m.list.SelectedItem().(Suggestion); ok && s.result.Item.IsCreated {
				codeModel := code.New(false, true, lipgloss.AdaptiveColor{Light: "#000000", Dark: "#ffffff"})
				codeModel.SetSize(m.width/2, m.height)
				cmds = append(cmds, codeModel.SetFileName(m.absPath(s.result.Item.Path)))
				m.preview = &codeModel
			}
		case "esc":
			if m.preview != nil {
				m.preview = nil
			} else {
				m.ctrl.Dismiss()
			}
		case "ctrl+c":
			m.ctrl.Close()
			return m, tea.Quit
		case "ctrl+r":
			if m.refresh != nil {
				refresh := m.refresh
				return m, func() tea.Msg {
					return refreshDoneMsg{err: refresh(context.Background())}
				}
			}
		case "ctrl+k":
			if m.preview != nil {
				m.preview.Viewport.LineUp(5)
			}
		case "ctrl+j":
			if m.preview != nil {
				m.preview.Viewport.LineDown(5)
			}
		}
	case tea.WindowSizeMsg:
		m.updateSize(msg.Width, msg.Height)
	}

	// Update the widgets sizes
	m.setListSize()
	m.setPreviewSize()

	// save to compare if changed
	oldValue := m.textInput.Value()

	// pass on message to the other components
	m.textInput, cmd = m.textInput.Update(msg)
	cmds = append(cmds, cmd)

	m.editor, cmd = m.editor.Update(msg)
	cmds = append(cmds, cmd)

	if m.preview != nil {
		var newPreview code.Bubble
		newPreview, cmd = m.preview.Update(msg)
		cmds = append(cmds, cmd)
		m.preview = &newPreview
	}

	// If input has changed, ask for new suggestions
	if newValue := m.textInput.Value(); oldValue != newValue {
		m.status = ""
		m.ctrl.SetInput(newValue)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) showSuggestions(u suggester.Update) {
	m.list.SetItems(lo.Map(u.Results, func(r search.Result, _ int) list.Item {
		return newSuggestion(r, u.Input, m.showPath)
	}))
	if len(u.Results) > 0 {
		m.list.Select(u.Selected)
	}
}

// commit runs off the event loop since opening a file posts back to the program.
func (m Model) commit(newTab, create bool) tea.Cmd {
	ctrl, logger := m.ctrl, m.logger
	return func() tea.Msg {
		var committed bool
		var err error
		if create {
			committed, err = ctrl.Create(context.Background(), newTab)
		} else {
			committed, err = ctrl.Commit(context.Background(), newTab)
		}
		if err != nil {
			logger.Error("Failed to commit", zap.Error(err))
		}
		return commitDoneMsg{committed: committed, err: err}
	}
}

// View fn for bubbletea model
func (m Model) View() string {
	listContent := ListStyle.Render(m.list.View())

	// render list
	innerContent := listContent

	// if preview then preview takes up half the width
	if m.preview != nil {
		innerContent = lipgloss.JoinHorizontal(lipgloss.Left,
			listContent,      // render list
			m.preview.View(), // render preview.
		)
	}

	// render the input box, the content and the last error
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.textInput.View(),
		innerContent,
		StatusStyle.Render(m.status),
	)
}

// mailbox holds the latest controller update until the model picks it up.
// Updates are full snapshots so older ones can be dropped.
type mailbox struct {
	mu     sync.Mutex
	latest suggester.Update
	ready  chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{ready: make(chan struct{}, 1)}
}

func (b *mailbox) put(u suggester.Update) {
	b.mu.Lock()
	b.latest = u
	b.mu.Unlock()
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

func (b *mailbox) wait() tea.Cmd {
	return func() tea.Msg {
		<-b.ready
		b.mu.Lock()
		defer b.mu.Unlock()
		return suggestionsMsg(b.latest)
	}
}

// Create the list model
func create_list_model() list.Model {
	l := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	l.SetShowFilter(false)
	l.SetShowHelp(false)
	l.SetShowTitle(false)
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.Styles.NoItems = l.Styles.NoItems.Copy().PaddingLeft(2)
	return l
}

// Create the text input model
func create_text_input() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "note name"
	ti.Prompt = "Search:"
	ti.PromptStyle = lipgloss.NewStyle().
		Background(lipgloss.Color("62")).
		Foreground(lipgloss.Color("230")).
		MarginRight(1).
		MarginLeft(2).
		Padding(0, 1)
	ti.Focus()
	return ti
}
