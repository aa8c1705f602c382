package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadConfigDefaults(t *testing.T) {
	config, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ".", config.RootPath)
	assert.Equal(t, "vim", config.Editor)
	assert.Equal(t, 20, config.MaxResults)
	assert.True(t, config.UnresolvedLinks)
	assert.False(t, config.MarkdownOnly)
	assert.Equal(t, EngineFuzzy, config.Engine)
	assert.Equal(t, time.Duration(0), config.Delay())
}

func TestLoadConfigFile(t *testing.T) {
	p := writeConfig(t, `
root_path: /notes
editor: nvim
new_tab_editor: code
extensions: [md, png]
exclude: ["archive/**"]
search_delay: 150
max_results: 5
markdown_only: true
unresolved_links: false
new_file_folder: inbox
engine: bleve
`)
	config, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "/notes", config.RootPath)
	assert.Equal(t, []string{"md", "png"}, config.Extensions)
	assert.Equal(t, []string{"archive/**"}, config.Exclude)
	assert.Equal(t, 150*time.Millisecond, config.Delay())
	assert.Equal(t, 5, config.MaxResults)
	assert.True(t, config.MarkdownOnly)
	assert.False(t, config.UnresolvedLinks)
	assert.Equal(t, "inbox", config.NewFileFolder)
	assert.Equal(t, EngineBleve, config.Engine)
	assert.Equal(t, "nvim", config.EditorFor(false))
	assert.Equal(t, "code", config.EditorFor(true))
}

func TestLoadConfigEnv(t *testing.T) {
	p := writeConfig(t, "editor: nvim\n")
	t.Setenv("NOTES_SWITCHER_EDITOR", "hx")
	t.Setenv("NOTES_SWITCHER_MAX_RESULTS", "7")

	config, err := LoadConfig(p)
	require.NoError(t, err)
	assert.Equal(t, "hx", config.Editor)
	assert.Equal(t, 7, config.MaxResults)
	assert.Equal(t, "hx", config.EditorFor(true))
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "engine: regex\n"))
	assert.ErrorContains(t, err, "unknown engine")

	_, err = LoadConfig(writeConfig(t, "max_results: 0\n"))
	assert.ErrorContains(t, err, "max_results")

	_, err = LoadConfig(writeConfig(t, "search_delay: -1\n"))
	assert.ErrorContains(t, err, "search_delay")

	_, err = LoadConfig(writeConfig(t, "editor: [unclosed\n"))
	assert.ErrorContains(t, err, "failed to read config file")
}
