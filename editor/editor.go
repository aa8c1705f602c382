package editor

import (
	"context"
	"os/exec"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/noelzubin/notes_switcher/search"
)

type Editor struct {
	Editing   bool   // Is the editor open
	EditorCmd string // Command to open the editor on shell
	NewTabCmd string // Command used for new tab opens, EditorCmd if empty
}

// Msg for when editor is closed.
type EditingFinished struct {
	Path string
	Err  error
}

// OpenFileMsg asks the editor to open a file on disk.
type OpenFileMsg struct {
	Path   string
	NewTab bool
}

// this opens up an external editor. The command may carry arguments.
func openEditor(command, filepath string) tea.Cmd {
	args := strings.Fields(command)
	if len(args) == 0 {
		return func() tea.Msg {
			return EditingFinished{Path: filepath, Err: exec.ErrNotFound}
		}
	}
	cmd := exec.Command(args[0], append(args[1:], filepath)...)
	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return EditingFinished{Path: filepath, Err: err}
	})
}

func (m *Editor) Init() tea.Cmd {
	return nil
}

func (m *Editor) EditFile(filepath string, newTab bool) tea.Cmd {
	m.Editing = true
	command := m.EditorCmd
	if newTab && m.NewTabCmd != "" {
		command = m.NewTabCmd
	}
	return openEditor(command, filepath)
}

func (m Editor) Update(msg tea.Msg) (Editor, tea.Cmd) {
	switch msg := msg.(type) {
	case EditingFinished:
		m.Editing = false
		return m, nil
	case OpenFileMsg:
		if m.Editing {
			return m, nil
		}
		cmd := m.EditFile(msg.Path, msg.NewTab)
		return m, cmd
	}

	return m, nil
}

// Doesnt render anything
func (m Editor) View() string {
	return ""
}

// Workspace opens committed files through the editor of a running program.
type Workspace struct {
	abs  func(p string) string
	send func(tea.Msg)
}

// NewWorkspace returns a workspace resolving vault paths with abs and posting
// open requests with send, usually tea.Program.Send.
func NewWorkspace(abs func(p string) string, send func(tea.Msg)) *Workspace {
	return &Workspace{abs: abs, send: send}
}

func (w *Workspace) Open(ctx context.Context, file *search.File, newTab bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	w.send(OpenFileMsg{Path: w.abs(file.Path), NewTab: newTab})
	return nil
}
