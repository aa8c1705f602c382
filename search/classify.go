package search

import (
	"path"
	"strings"

	"github.com/samber/lo"
)

// FileType is the coarse category of a file.
type FileType string

const (
	FileTypeMarkdown FileType = "markdown"
	FileTypeImage    FileType = "image"
	FileTypeAudio    FileType = "audio"
	FileTypeVideo    FileType = "video"
	FileTypePDF      FileType = "pdf"
	FileTypeCanvas   FileType = "canvas"
	FileTypeOther    FileType = "other"
)

// DefaultExtension is used for notes created from the switcher.
const DefaultExtension = "md"

var extensionsByType = map[FileType][]string{
	FileTypeMarkdown: {"md"},
	FileTypeImage:    {"png", "jpg", "jpeg", "gif", "bmp", "svg", "webp", "avif"},
	FileTypeAudio:    {"mp3", "wav", "m4a", "ogg", "3gp", "flac"},
	FileTypeVideo:    {"mp4", "webm", "ogv", "mov", "mkv"},
	FileTypePDF:      {"pdf"},
	FileTypeCanvas:   {"canvas"},
}

var typeByExtension = func() map[string]FileType {
	m := make(map[string]FileType)
	for t, exts := range extensionsByType {
		for _, ext := range exts {
			m[ext] = t
		}
	}
	return m
}()

// TypeOf returns the file type for an extension.
func TypeOf(ext string) FileType {
	if t, ok := typeByExtension[strings.ToLower(ext)]; ok {
		return t
	}
	return FileTypeOther
}

// IsValidExtension reports whether ext is a known extension.
func IsValidExtension(ext string) bool {
	_, ok := typeByExtension[ext]
	return ok
}

// IsValidFileType reports whether t names a filterable file type.
func IsValidFileType(t string) bool {
	_, ok := extensionsByType[FileType(t)]
	return ok
}

// Classify builds the created entry for a stored file.
func Classify(file *File, aliases []string) SearchFile {
	return SearchFile{
		Name:      file.Name,
		Path:      file.Path,
		Basename:  file.Basename,
		FileType:  TypeOf(file.Extension),
		Extension: file.Extension,
		Aliases:   cleanAliases(aliases, file.Basename),
		IsCreated: true,
		File:      file,
	}
}

// SynthesizeUnresolved builds the entry for a path only known from a link.
func SynthesizeUnresolved(p string) SearchFile {
	p = strings.TrimPrefix(p, "/")
	name := path.Base(p)
	if p == "" {
		name = ""
	}
	basename, ext := splitName(name)
	return SearchFile{
		Name:         name,
		Path:         p,
		Basename:     basename,
		FileType:     TypeOf(ext),
		Extension:    ext,
		IsUnresolved: true,
	}
}

// NewCandidate builds the hypothetical entry offered when nothing matches.
func NewCandidate(input, ext string) SearchFile {
	name := input + "." + ext
	return SearchFile{
		Name:      name,
		Path:      name,
		Basename:  input,
		FileType:  TypeOf(ext),
		Extension: ext,
	}
}

func cleanAliases(aliases []string, basename string) []string {
	cleaned := lo.Uniq(lo.FilterMap(aliases, func(a string, _ int) (string, bool) {
		a = strings.TrimSpace(a)
		return a, a != "" && a != basename
	}))
	if len(cleaned) == 0 {
		return nil
	}
	return cleaned
}

// Filter narrows the searchable corpus to one file type or extension.
// The zero value is unconstrained.
type Filter string

// NoFilter is the unconstrained filter.
const NoFilter Filter = ""

// ParseFilter validates a filter token typed by the user.
func ParseFilter(token string) (Filter, bool) {
	token = strings.ToLower(strings.TrimSpace(token))
	if IsValidExtension(token) || IsValidFileType(token) {
		return Filter(token), true
	}
	return NoFilter, false
}

// Matches reports whether f passes the filter.
func (flt Filter) Matches(f SearchFile) bool {
	if flt == NoFilter {
		return true
	}
	return f.Extension == string(flt) || string(f.FileType) == string(flt)
}

// IsMarkdown reports whether the filter admits new markdown notes.
func (flt Filter) IsMarkdown() bool {
	return flt == NoFilter || flt == Filter(FileTypeMarkdown) || flt == Filter(DefaultExtension)
}

// FilterFiles returns the entries of files passing flt.
func FilterFiles(files []SearchFile, flt Filter) []SearchFile {
	if flt == NoFilter {
		return files
	}
	return lo.Filter(files, func(f SearchFile, _ int) bool {
		return flt.Matches(f)
	})
}
