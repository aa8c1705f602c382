package vault

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/noelzubin/notes_switcher/search"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// ErrExists is returned when creating a file over an existing one.
var ErrExists = errors.New("file already exists")

// Options configures which files belong to the vault.
type Options struct {
	Root          string   // Directory on disk, used to build absolute paths
	Extensions    []string // Accepted extensions, empty accepts every file
	Exclude       []string // doublestar patterns relative to the root
	NewFileFolder string   // Folder new notes are created in
}

// Vault is a folder of notes accessed through afero. Paths handed in and out
// are vault relative and "/" separated.
type Vault struct {
	fs            afero.Fs
	root          string
	extensions    []string
	exclude       []string
	newFileFolder string
	logger        *zap.Logger
}

// New returns a vault over fs. fs is expected to be rooted at the vault,
// for instance an afero.BasePathFs.
func New(fs afero.Fs, options Options, logger *zap.Logger) *Vault {
	if logger == nil {
		logger = zap.NewNop()
	}
	extensions := lo.FilterMap(options.Extensions, func(e string, _ int) (string, bool) {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		return e, e != ""
	})
	return &Vault{
		fs:            fs,
		root:          options.Root,
		extensions:    extensions,
		exclude:       options.Exclude,
		newFileFolder: strings.Trim(path.Clean("/"+options.NewFileFolder), "/"),
		logger:        logger,
	}
}

// NewOs returns a vault over the directory root on disk.
func NewOs(options Options, logger *zap.Logger) *Vault {
	return New(afero.NewBasePathFs(afero.NewOsFs(), options.Root), options, logger)
}

// Root returns the directory of the vault on disk.
func (v *Vault) Root() string { return v.root }

// AbsPath returns the location of a vault path on disk.
func (v *Vault) AbsPath(p string) string {
	return filepath.Join(v.root, filepath.FromSlash(p))
}

// RelPath converts a location on disk to a vault path.
func (v *Vault) RelPath(abs string) (string, bool) {
	rel, err := filepath.Rel(v.root, abs)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// Excluded reports whether p or one of its folders matches an exclude pattern.
// Hidden files and folders are always excluded.
func (v *Vault) Excluded(p string) bool {
	for _, part := range strings.Split(p, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	for _, pattern := range v.exclude {
		if matched, err := doublestar.Match(pattern, p); err == nil && matched {
			return true
		}
		if matched, err := doublestar.Match(strings.TrimSuffix(pattern, "/**"), p); err == nil && matched {
			return true
		}
	}
	return false
}

// Accepts reports whether the file at p is part of the vault.
func (v *Vault) Accepts(p string) bool {
	if v.Excluded(p) {
		return false
	}
	if len(v.extensions) == 0 {
		return true
	}
	return lo.Contains(v.extensions, search.NewFile(p).Extension)
}

// FileInfo is the path and last modification time of a vault file.
type FileInfo struct {
	Path    string
	ModTime time.Time
}

// Scan lists every accepted file of the vault, sorted by path.
func (v *Vault) Scan(ctx context.Context) ([]FileInfo, error) {
	var infos []FileInfo
	err := afero.Walk(v.fs, "/", func(p string, info os.FileInfo, err error) error {
		if err != nil {
			v.logger.Warn("Skipping unreadable path", zap.String("path", p), zap.Error(err))
			return nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rel := strings.TrimPrefix(filepath.ToSlash(p), "/")
		if rel == "" {
			return nil
		}
		if info.IsDir() {
			if v.Excluded(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if v.Accepts(rel) {
			infos = append(infos, FileInfo{Path: rel, ModTime: info.ModTime()})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan vault: %w", err)
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

// Files lists the handles of every accepted file.
func (v *Vault) Files(ctx context.Context) ([]*search.File, error) {
	infos, err := v.Scan(ctx)
	if err != nil {
		return nil, err
	}
	return lo.Map(infos, func(fi FileInfo, _ int) *search.File { return search.NewFile(fi.Path) }), nil
}

// CompareFileInfos returns the files deleted, modified and created between two scans.
func CompareFileInfos(old, current []FileInfo) (deleted, modified, created []FileInfo) {
	before := lo.KeyBy(old, func(fi FileInfo) string { return fi.Path })
	after := lo.KeyBy(current, func(fi FileInfo) string { return fi.Path })

	for _, fi := range old {
		if _, ok := after[fi.Path]; !ok {
			deleted = append(deleted, fi)
		}
	}
	for _, fi := range current {
		prev, ok := before[fi.Path]
		switch {
		case !ok:
			created = append(created, fi)
		case !prev.ModTime.Equal(fi.ModTime):
			modified = append(modified, fi)
		}
	}
	return deleted, modified, created
}

// Read returns the content of the file at p.
func (v *Vault) Read(p string) ([]byte, error) {
	return afero.ReadFile(v.fs, fsPath(p))
}

// Create writes a new file at p. It fails with ErrExists if p is taken.
func (v *Vault) Create(ctx context.Context, p, content string) (*search.File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	exists, err := afero.Exists(v.fs, fsPath(p))
	if err != nil {
		return nil, fmt.Errorf("failed to stat %s: %w", p, err)
	}
	if exists {
		return nil, fmt.Errorf("%s: %w", p, ErrExists)
	}
	if err := afero.WriteFile(v.fs, fsPath(p), []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", p, err)
	}
	v.logger.Info("Created file", zap.String("path", p))
	return search.NewFile(p), nil
}

// Exists reports whether a file or folder exists at p.
func (v *Vault) Exists(ctx context.Context, p string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return afero.Exists(v.fs, fsPath(p))
}

// CreateFolder creates the folder p and its parents.
func (v *Vault) CreateFolder(ctx context.Context, p string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := v.fs.MkdirAll(fsPath(p), 0o755); err != nil {
		return fmt.Errorf("failed to create folder %s: %w", p, err)
	}
	return nil
}

// NewFileParent returns the folder new notes go to, "" for the root.
func (v *Vault) NewFileParent() string { return v.newFileFolder }

// IsDir reports whether p is a folder.
func (v *Vault) IsDir(p string) bool {
	ok, err := afero.IsDir(v.fs, fsPath(p))
	return err == nil && ok
}

func fsPath(p string) string {
	return "/" + strings.TrimPrefix(path.Clean("/"+p), "/")
}
