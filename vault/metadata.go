package vault

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/samber/lo"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/frontmatter"
	"go.abhg.dev/goldmark/wikilink"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// Scans read at most this many notes at once.
const scanWorkers = 8

// noteMeta is what the cache knows about one markdown note.
type noteMeta struct {
	aliases []string
	links   []string // Link targets as written, without heading or alias
}

// MetadataCache holds the frontmatter aliases and outgoing links of the vault
// notes. It is clean once every pending parse has finished.
type MetadataCache struct {
	vault  *Vault
	logger *zap.Logger

	mu         sync.RWMutex
	notes      map[string]noteMeta
	files      map[string]struct{} // Every known vault path
	names      map[string]struct{} // Every known file name, for bare links
	pending    int
	onClean    []func()
	onResolved []func()
}

func NewMetadataCache(v *Vault, logger *zap.Logger) *MetadataCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MetadataCache{
		vault:  v,
		logger: logger,
		notes:  make(map[string]noteMeta),
		files:  make(map[string]struct{}),
		names:  make(map[string]struct{}),
	}
}

// Scan parses every markdown file of files concurrently and replaces the cache.
func (c *MetadataCache) Scan(ctx context.Context, files []*search.File) error {
	c.begin()

	notes := make([]noteMeta, len(files))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(scanWorkers)
	for i, f := range files {
		if search.TypeOf(f.Extension) != search.FileTypeMarkdown {
			continue
		}
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			meta, err := c.parse(f.Path)
			if err != nil {
				c.logger.Warn("Skipping unreadable note", zap.String("path", f.Path), zap.Error(err))
				return nil
			}
			notes[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.end(false)
		return fmt.Errorf("failed to scan metadata: %w", err)
	}

	c.mu.Lock()
	c.notes = make(map[string]noteMeta, len(files))
	c.files = make(map[string]struct{}, len(files))
	c.names = make(map[string]struct{}, len(files))
	for i, f := range files {
		c.addFile(f)
		if search.TypeOf(f.Extension) == search.FileTypeMarkdown {
			c.notes[f.Path] = notes[i]
		}
	}
	c.mu.Unlock()

	c.logger.Info("Scanned metadata", zap.Int("files", len(files)))
	c.end(true)
	return nil
}

// Refresh parses f again after it was created or modified.
func (c *MetadataCache) Refresh(f *search.File) error {
	c.begin()

	var meta noteMeta
	isNote := search.TypeOf(f.Extension) == search.FileTypeMarkdown
	if isNote {
		var err error
		if meta, err = c.parse(f.Path); err != nil {
			c.end(false)
			return err
		}
	}

	c.mu.Lock()
	c.addFile(f)
	if isNote {
		c.notes[f.Path] = meta
	}
	c.mu.Unlock()

	c.end(true)
	return nil
}

// Remove forgets the file at p.
func (c *MetadataCache) Remove(p string) {
	c.begin()
	c.mu.Lock()
	delete(c.notes, p)
	delete(c.files, p)
	c.names = make(map[string]struct{}, len(c.files))
	for known := range c.files {
		c.names[path.Base(known)] = struct{}{}
	}
	c.mu.Unlock()
	c.end(true)
}

// Rename moves the metadata of oldPath to f.
func (c *MetadataCache) Rename(f *search.File, oldPath string) error {
	c.Remove(oldPath)
	return c.Refresh(f)
}

// Aliases returns the frontmatter aliases of the note at p.
func (c *MetadataCache) Aliases(p string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.notes[p].aliases...)
}

// UnresolvedLinks returns the vault paths that links point to but no file
// exists at, sorted.
func (c *MetadataCache) UnresolvedLinks() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	targets := make(map[string]struct{})
	for _, meta := range c.notes {
		for _, link := range meta.links {
			if c.resolves(link) {
				continue
			}
			targets[linkPath(link)] = struct{}{}
		}
	}
	out := lo.Keys(targets)
	sort.Strings(out)
	return out
}

// OnCleanCache runs fn once no parse is pending. It runs right away when the
// cache is already clean.
func (c *MetadataCache) OnCleanCache(fn func()) {
	c.mu.Lock()
	if c.pending > 0 {
		c.onClean = append(c.onClean, fn)
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()
	fn()
}

// OnResolved registers fn to run after every successful parse.
func (c *MetadataCache) OnResolved(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onResolved = append(c.onResolved, fn)
}

// IsClean reports whether no parse is pending.
func (c *MetadataCache) IsClean() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.pending == 0
}

func (c *MetadataCache) begin() {
	c.mu.Lock()
	c.pending++
	c.mu.Unlock()
}

func (c *MetadataCache) end(resolved bool) {
	c.mu.Lock()
	c.pending--
	var clean []func()
	if c.pending == 0 {
		clean, c.onClean = c.onClean, nil
	}
	listeners := append([]func(){}, c.onResolved...)
	c.mu.Unlock()

	if resolved {
		for _, fn := range listeners {
			fn()
		}
	}
	for _, fn := range clean {
		fn()
	}
}

// addFile records f as existing. Callers hold mu.
func (c *MetadataCache) addFile(f *search.File) {
	c.files[f.Path] = struct{}{}
	c.names[f.Name] = struct{}{}
}

// resolves reports whether link points to a known file. A link without a
// folder resolves against any file of that name. Callers hold mu.
func (c *MetadataCache) resolves(link string) bool {
	target := linkPath(link)
	if _, ok := c.files[target]; ok {
		return true
	}
	if strings.Contains(target, "/") {
		return false
	}
	_, ok := c.names[target]
	return ok
}

func (c *MetadataCache) parse(p string) (noteMeta, error) {
	content, err := c.vault.Read(p)
	if err != nil {
		return noteMeta{}, fmt.Errorf("failed to read %s: %w", p, err)
	}

	ctx := parser.NewContext()
	doc := newMarkdown().Parser().Parse(text.NewReader(content), parser.WithContext(ctx))

	var meta noteMeta
	if data := frontmatter.Get(ctx); data != nil {
		var fields noteFrontmatter
		if err := data.Decode(&fields); err != nil {
			c.logger.Warn("Ignoring malformed frontmatter", zap.String("path", p), zap.Error(err))
		} else {
			meta.aliases = fields.aliases()
		}
	}

	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if link, ok := n.(*wikilink.Node); ok && entering {
			// Block references are not part of the target.
			target, _, _ := strings.Cut(string(link.Target), "^")
			if target = strings.TrimSpace(target); target != "" {
				meta.links = append(meta.links, target)
			}
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return noteMeta{}, fmt.Errorf("failed to read links of %s: %w", p, err)
	}
	meta.links = lo.Uniq(meta.links)
	return meta, nil
}

// newMarkdown returns a parser for one note. Parsers are not shared between
// the scan workers.
func newMarkdown() goldmark.Markdown {
	return goldmark.New(goldmark.WithExtensions(
		&frontmatter.Extender{},
		&wikilink.Extender{},
	))
}

// noteFrontmatter holds the keys read from a note's frontmatter.
type noteFrontmatter struct {
	Aliases yaml.Node `yaml:"aliases"`
	Alias   yaml.Node `yaml:"alias"`
}

// aliases reads the aliases or alias key, as a list or a comma separated string.
func (f *noteFrontmatter) aliases() []string {
	node := &f.Aliases
	if node.Kind == 0 {
		node = &f.Alias
	}
	var out []string
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag != "!!null" {
			out = strings.Split(node.Value, ",")
		}
	case yaml.SequenceNode:
		for _, item := range node.Content {
			if item.Kind == yaml.ScalarNode && item.Tag != "!!null" {
				out = append(out, item.Value)
			}
		}
	}
	return lo.FilterMap(out, func(a string, _ int) (string, bool) {
		a = strings.TrimSpace(a)
		return a, a != ""
	})
}

// linkPath is the vault path a link creates its target at.
func linkPath(link string) string {
	p := strings.TrimPrefix(path.Clean("/"+link), "/")
	if !search.IsValidExtension(search.NewFile(p).Extension) {
		p += "." + search.DefaultExtension
	}
	return p
}
