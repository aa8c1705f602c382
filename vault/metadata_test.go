package vault

import (
	"context"
	"testing"

	"github.com/noelzubin/notes_switcher/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scannedCache(t *testing.T, files map[string]string) (*Vault, *MetadataCache) {
	t.Helper()
	v := newTestVault(t, Options{}, files)
	handles, err := v.Files(context.Background())
	require.NoError(t, err)
	c := NewMetadataCache(v, nil)
	require.NoError(t, c.Scan(context.Background(), handles))
	return v, c
}

func TestAliases(t *testing.T) {
	_, c := scannedCache(t, map[string]string{
		"list.md":      "---\naliases:\n  - Standup\n  - daily sync\n---\nbody",
		"string.md":    "---\nalias: one, two\n---\n",
		"number.md":    "---\naliases: [2023, \" \"]\n---\n",
		"none.md":      "no frontmatter here",
		"broken.md":    "---\naliases: [unclosed\n---\n",
		"assets/a.png": "",
	})

	assert.Equal(t, []string{"Standup", "daily sync"}, c.Aliases("list.md"))
	assert.Equal(t, []string{"one", "two"}, c.Aliases("string.md"))
	assert.Equal(t, []string{"2023"}, c.Aliases("number.md"))
	assert.Empty(t, c.Aliases("none.md"))
	assert.Empty(t, c.Aliases("broken.md"))
	assert.Empty(t, c.Aliases("missing.md"))
}

func TestUnresolvedLinks(t *testing.T) {
	_, c := scannedCache(t, map[string]string{
		"Home.md": "See [[Garden]], [[ideas/Later#Plan|later]] and [[Home]].\n" +
			"![[assets/cat.png]] ![[missing.png]] [[paper.pdf]] [[Garden^block]]",
		"notes/Garden.md": "[[Home]] [[Nowhere]]",
		"assets/cat.png":  "",
	})

	assert.Equal(t, []string{"Nowhere.md", "ideas/Later.md", "missing.png", "paper.pdf"}, c.UnresolvedLinks())
}

func TestFrontmatterLinksIgnored(t *testing.T) {
	_, c := scannedCache(t, map[string]string{
		"a.md": "---\nup: \"[[Parent]]\"\n---\n[[Child]]",
	})
	assert.Equal(t, []string{"Child.md"}, c.UnresolvedLinks())
}

func TestRefreshResolvesLinks(t *testing.T) {
	v, c := scannedCache(t, map[string]string{"a.md": "[[b]]"})
	require.Equal(t, []string{"b.md"}, c.UnresolvedLinks())

	resolved := 0
	c.OnResolved(func() { resolved++ })

	f, err := v.Create(context.Background(), "b.md", "---\naliases: [bee]\n---\n")
	require.NoError(t, err)
	require.NoError(t, c.Refresh(f))

	assert.Equal(t, 1, resolved)
	assert.Empty(t, c.UnresolvedLinks())
	assert.Equal(t, []string{"bee"}, c.Aliases("b.md"))

	c.Remove("b.md")
	assert.Equal(t, 2, resolved)
	assert.Equal(t, []string{"b.md"}, c.UnresolvedLinks())
	assert.Empty(t, c.Aliases("b.md"))
}

func TestRename(t *testing.T) {
	v, c := scannedCache(t, map[string]string{"old.md": "---\naliases: [x]\n---\n"})

	_, err := v.Create(context.Background(), "new.md", "---\naliases: [y]\n---\n")
	require.NoError(t, err)
	require.NoError(t, c.Rename(search.NewFile("new.md"), "old.md"))

	assert.Empty(t, c.Aliases("old.md"))
	assert.Equal(t, []string{"y"}, c.Aliases("new.md"))
}

func TestRefreshMissingFile(t *testing.T) {
	_, c := scannedCache(t, nil)

	err := c.Refresh(search.NewFile("gone.md"))
	assert.Error(t, err)
	assert.True(t, c.IsClean())
}

func TestOnCleanCache(t *testing.T) {
	_, c := scannedCache(t, nil)

	ran := false
	c.OnCleanCache(func() { ran = true })
	assert.True(t, ran, "runs immediately on a clean cache")

	c.begin()
	ran = false
	c.OnCleanCache(func() { ran = true })
	assert.False(t, ran)
	assert.False(t, c.IsClean())

	c.end(true)
	assert.True(t, ran)

	// Deferred callbacks run once.
	ran = false
	c.begin()
	c.end(true)
	assert.False(t, ran)
}

func TestScanSkipsUnreadableNote(t *testing.T) {
	v := newTestVault(t, Options{}, map[string]string{
		"Good.md": "---\naliases: [fine]\n---\n[[Missing]] [[Broken]]",
	})
	c := NewMetadataCache(v, nil)

	// Broken.md is listed but cannot be read, like a dangling symlink.
	err := c.Scan(context.Background(), []*search.File{search.NewFile("Good.md"), search.NewFile("Broken.md")})
	require.NoError(t, err)

	assert.Equal(t, []string{"fine"}, c.Aliases("Good.md"))
	assert.Empty(t, c.Aliases("Broken.md"))
	assert.Equal(t, []string{"Missing.md"}, c.UnresolvedLinks())
	assert.True(t, c.IsClean())
}

func TestLinksInCodeIgnored(t *testing.T) {
	_, c := scannedCache(t, map[string]string{
		"a.md": "```\n[[Fenced]]\n```\n\n`[[Inline]]` and [[Real]]\n",
	})
	assert.Equal(t, []string{"Real.md"}, c.UnresolvedLinks())
}
