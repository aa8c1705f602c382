package synchronizer

import "github.com/noelzubin/notes_switcher/search"

// EventKind is the kind of a vault event.
type EventKind int

const (
	EventCreate EventKind = iota
	EventDelete
	EventRename
	EventResolve
)

func (k EventKind) String() string {
	switch k {
	case EventCreate:
		return "create"
	case EventDelete:
		return "delete"
	case EventRename:
		return "rename"
	case EventResolve:
		return "resolve"
	}
	return "unknown"
}

// Event is a vault mutation waiting for the metadata cache to settle.
type Event struct {
	Kind    EventKind
	File    *search.File // Created or renamed file
	Path    string       // Deleted path
	OldPath string       // Path before a rename
}

func CreateEvent(f *search.File) Event { return Event{Kind: EventCreate, File: f, Path: f.Path} }

func DeleteEvent(path string) Event { return Event{Kind: EventDelete, Path: path} }

func RenameEvent(f *search.File, oldPath string) Event {
	return Event{Kind: EventRename, File: f, Path: f.Path, OldPath: oldPath}
}

func ResolveEvent() Event { return Event{Kind: EventResolve} }
