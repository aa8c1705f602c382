package suggester

import (
	"context"

	"github.com/noelzubin/notes_switcher/search"
)

// QuerySource produces ranked suggestions for the typed input.
type QuerySource interface {
	Suggest(input string) []search.Result
}

// Committer resolves the selected suggestion. selected is nil when the user
// asks to create from the raw input.
type Committer interface {
	Commit(ctx context.Context, selected *search.Result, input string, newTab bool) (Outcome, error)
}

// Filterable sources can narrow their corpus to a file type or extension.
type Filterable interface {
	ApplyFilter(f search.Filter)
}

// Fallback sources offer candidates when a query matched nothing.
type Fallback interface {
	NoSuggestion(input string, f search.Filter) []search.Result
}

// Outcome is the result of a commit.
type Outcome struct {
	File    *search.File // Opened or created file, nil if nothing was opened
	Created bool
	Input   string // Input left in the search bar afterwards
}

// Storage is the vault the suggester creates notes in.
type Storage interface {
	Create(ctx context.Context, path, content string) (*search.File, error)
	Exists(ctx context.Context, path string) (bool, error)
	CreateFolder(ctx context.Context, path string) error
	NewFileParent() string // Folder for new notes, "" for the vault root
}

// Workspace opens files for the user.
type Workspace interface {
	Open(ctx context.Context, file *search.File, newTab bool) error
}
