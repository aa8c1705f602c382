package utils

import (
	"errors"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const envPrefix = "NOTES_SWITCHER"

// Search engines selectable with the engine key.
const (
	EngineFuzzy = "fuzzy"
	EngineBleve = "bleve"
)

// Config is the cofiguration for the application
type Config struct {
	RootPath        string   `mapstructure:"root_path"`        // Root path of the notes.
	Editor          string   `mapstructure:"editor"`           // Editor to open the notes with
	NewTabEditor    string   `mapstructure:"new_tab_editor"`   // Editor used when opening in a new tab
	Extensions      []string `mapstructure:"extensions"`       // Extensions of notes to be indexed, empty for all
	Exclude         []string `mapstructure:"exclude"`          // Glob patterns of paths to skip
	SearchDelay     int      `mapstructure:"search_delay"`     // Debounce of the search input in milliseconds
	MaxResults      int      `mapstructure:"max_results"`      // Suggestions shown at most
	MarkdownOnly    bool     `mapstructure:"markdown_only"`    // Only suggest markdown notes
	UnresolvedLinks bool     `mapstructure:"unresolved_links"` // Suggest notes that are linked but missing
	ShowPath        bool     `mapstructure:"show_path"`        // Show the folder next to each suggestion
	NewFileFolder   string   `mapstructure:"new_file_folder"`  // Folder new notes are created in
	Engine          string   `mapstructure:"engine"`           // fuzzy or bleve
	LogPath         string   `mapstructure:"log_path"`         // Debug log file
}

// DefaultConfigPath is the config file read when none is given.
func DefaultConfigPath() string {
	homedir, _ := os.UserHomeDir()
	return path.Join(homedir, ".config/notes_switcher/config.yaml")
}

func setDefaults(v *viper.Viper) {
	homedir, _ := os.UserHomeDir()
	v.SetDefault("root_path", ".")
	v.SetDefault("editor", "vim")
	v.SetDefault("new_tab_editor", "")
	v.SetDefault("extensions", []string{})
	v.SetDefault("exclude", []string{})
	v.SetDefault("search_delay", 0)
	v.SetDefault("max_results", 20)
	v.SetDefault("markdown_only", false)
	v.SetDefault("unresolved_links", true)
	v.SetDefault("show_path", true)
	v.SetDefault("new_file_folder", "")
	v.SetDefault("engine", EngineFuzzy)
	v.SetDefault("log_path", path.Join(homedir, ".config/notes_switcher/debug.log"))
}

// LoadConfig reads the config file at configPath. Environment variables
// prefixed with NOTES_SWITCHER_ override the file. A missing file is not an
// error.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to parse the config file: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate checks values viper cannot check by type.
func (c *Config) Validate() error {
	switch c.Engine {
	case EngineFuzzy, EngineBleve:
	default:
		return fmt.Errorf("unknown engine %q, expected %s or %s", c.Engine, EngineFuzzy, EngineBleve)
	}
	if c.SearchDelay < 0 {
		return fmt.Errorf("search_delay must not be negative, got %d", c.SearchDelay)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive, got %d", c.MaxResults)
	}
	return nil
}

// Delay is the search debounce.
func (c *Config) Delay() time.Duration {
	return time.Duration(c.SearchDelay) * time.Millisecond
}

// EditorFor returns the editor command for opening in place or in a new tab.
func (c *Config) EditorFor(newTab bool) string {
	if newTab && c.NewTabEditor != "" {
		return c.NewTabEditor
	}
	return c.Editor
}
