package search

import (
	"path"
	"strings"
)

// File is the handle of a note that exists in the vault.
type File struct {
	Path      string // Vault relative path, "/" separated
	Name      string // File name with extension
	Basename  string // File name without extension
	Extension string // Lower-cased extension without the dot
	Parent    string // Parent folder, "" for the vault root
}

// NewFile builds a handle from a vault relative path.
func NewFile(p string) *File {
	p = strings.TrimPrefix(path.Clean("/"+p), "/")
	name := path.Base(p)
	if p == "" {
		name = ""
	}
	basename, ext := splitName(name)
	parent := path.Dir(p)
	if parent == "." {
		parent = ""
	}
	return &File{Path: p, Name: name, Basename: basename, Extension: ext, Parent: parent}
}

// SearchFile is one entry of the searchable index.
type SearchFile struct {
	Name         string   // Display name including extension
	Path         string   // Unique key
	Basename     string   // Name without extension
	FileType     FileType // Coarse category
	Extension    string   // Fine grained type tag
	Aliases      []string // Alternate display names
	IsCreated    bool     // Backed by a stored file
	IsUnresolved bool     // Only referenced by a link
	File         *File    // Set iff IsCreated
}

// Span is a byte range [Start, End) into a matched value.
type Span struct {
	Start int
	End   int
}

// Match describes how one field of a SearchFile matched a query.
type Match struct {
	Key        string  // Field key, one of the Key* constants
	Value      string  // The field value that matched
	ArrayIndex int     // Index into Aliases for the aliases key, else -1
	Score      float64 // Raw field score, lower is better
	Spans      []Span
}

// Result is a ranked query hit.
type Result struct {
	Item     SearchFile
	RefIndex int     // Position of Item in the indexed corpus
	Score    float64 // Lower is better, 0 is a perfect match
	Matches  []Match
}

// Field keys that an index can match on.
const (
	KeyBasename = "basename"
	KeyAliases  = "aliases"
	KeyName     = "name"
)

// Key is a weighted field of the match configuration.
type Key struct {
	Name   string
	Weight float64
}

// Options is the match configuration shared by the index engines.
type Options struct {
	Keys            []Key
	FieldNormWeight float64 // Strength of the field length normalization
	IgnoreLocation  bool    // Matches anywhere in a field score equally
	Threshold       float64 // Drop results scoring above this, 0 disables
}

// DefaultFileOptions is the configuration of the note switcher.
func DefaultFileOptions() Options {
	return Options{
		Keys:            []Key{{Name: KeyBasename, Weight: 1.5}, {Name: KeyAliases, Weight: 0.1}},
		FieldNormWeight: 1.65,
		IgnoreLocation:  true,
	}
}

// DefaultImageOptions is the configuration of the image picker.
func DefaultImageOptions() Options {
	return Options{
		Keys:            []Key{{Name: KeyName, Weight: 1}},
		FieldNormWeight: 1,
		IgnoreLocation:  true,
		Threshold:       0.25,
	}
}

// Index is a ranked approximate matcher over an ordered corpus.
type Index interface {
	// Rebuild replaces the whole corpus.
	Rebuild(files []SearchFile)
	// Query returns at most limit results ordered by ascending score.
	// An empty query returns no results.
	Query(text string, limit int) []Result
}

// FieldValues returns the values of key for f. Only aliases has more than one.
func FieldValues(f SearchFile, key string) []string {
	switch key {
	case KeyBasename:
		return []string{f.Basename}
	case KeyName:
		return []string{f.Name}
	case KeyAliases:
		return f.Aliases
	}
	return nil
}

func splitName(name string) (basename, ext string) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return name, ""
	}
	return name[:dot], strings.ToLower(name[dot+1:])
}
