package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/noelzubin/notes_switcher/editor"
	"github.com/noelzubin/notes_switcher/search/suggester"
	"github.com/noelzubin/notes_switcher/utils"
	"github.com/noelzubin/notes_switcher/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

func main() {
	app := &cli.App{
		Name:  "notes_switcher",
		Usage: "jump to a note of the vault, or create it",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   utils.DefaultConfigPath(),
				Usage:   "config file",
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "vault folder, overrides root_path",
			},
			&cli.StringFlag{
				Name:    "engine",
				Aliases: []string{"e"},
				Usage:   "search engine, fuzzy or bleve",
			},
		},
		Action: func(c *cli.Context) error {
			return run(c, modeNotes)
		},
		Commands: []*cli.Command{
			{
				Name:  "image",
				Usage: "pick an image of the vault and print its path",
				Action: func(c *cli.Context) error {
					return run(c, modeImages)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*utils.Config, error) {
	config, err := utils.LoadConfig(c.String("config"))
	if err != nil {
		return nil, err
	}
	if root := c.String("root"); root != "" {
		config.RootPath = root
	}
	if engine := c.String("engine"); engine != "" {
		config.Engine = engine
	}
	if abs, err := filepath.Abs(config.RootPath); err == nil {
		config.RootPath = abs
	}
	return config, config.Validate()
}

// newLogger writes JSON logs to path, since bubbletea owns the terminal.
func newLogger(path string) (*zap.Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log folder: %w", err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.OutputPaths = []string{path}
	cfg.ErrorOutputPaths = []string{path}
	return cfg.Build()
}

func run(c *cli.Context, mode mode) error {
	config, err := loadConfig(c)
	if err != nil {
		return err
	}

	// Setup logging.
	logger, err := newLogger(config.LogPath)
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry := prometheus.NewRegistry()
	v := vault.NewOs(vault.Options{
		Root:          config.RootPath,
		Extensions:    config.Extensions,
		Exclude:       config.Exclude,
		NewFileFolder: config.NewFileFolder,
	}, logger.Named("vault"))

	index := NewIndex(v, config, logger, registry)
	defer func() {
		if err := index.Close(); err != nil {
			logger.Warn("Failed to close index", zap.Error(err))
		}
		logMetrics(logger, registry)
	}()

	ctx := c.Context
	if ctx == nil {
		ctx = context.Background()
	}
	if err := index.Load(ctx); err != nil {
		return err
	}
	if err := index.Watch(); err != nil {
		logger.Warn("Watching disabled", zap.Error(err))
	}

	// The workspace posts to the program, which needs the model first.
	var p *tea.Program
	workspace := editor.NewWorkspace(v.AbsPath, func(msg tea.Msg) { p.Send(msg) })

	var ctrl *suggester.Controller
	switch mode {
	case modeImages:
		images := suggester.NewImageSuggester(index.images)
		ctrl = suggester.NewController(images, images, config.Delay(), logger.Named("images"))
	default:
		files := suggester.NewFileSuggester(index.files, v, workspace, config.MaxResults, logger.Named("suggester"))
		ctrl = suggester.NewController(files, files, config.Delay(), logger.Named("controller"))
	}
	defer ctrl.Close()

	m := New(Options{
		Controller: ctrl,
		Editor:     editor.Editor{EditorCmd: config.EditorFor(false), NewTabCmd: config.EditorFor(true)},
		AbsPath:    v.AbsPath,
		Refresh:    index.Refresh,
		Mode:       mode,
		ShowPath:   config.ShowPath,
		Logger:     logger,
	})
	p = tea.NewProgram(m)
	final, err := p.Run()
	if err != nil {
		return err
	}

	if mode == modeImages {
		if picked := pickedPath(final); picked != "" {
			fmt.Println(picked)
		}
	}
	return nil
}

func pickedPath(final tea.Model) string {
	switch m := final.(type) {
	case Model:
		return m.picked
	case *Model:
		return m.picked
	}
	return ""
}

// logMetrics writes the counters and gauges of the session to the log.
func logMetrics(logger *zap.Logger, registry *prometheus.Registry) {
	families, err := registry.Gather()
	if err != nil {
		logger.Warn("Failed to gather metrics", zap.Error(err))
		return
	}
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			switch {
			case metric.GetCounter() != nil:
				logger.Info("Metric", zap.String("name", family.GetName()), zap.Float64("value", metric.GetCounter().GetValue()))
			case metric.GetGauge() != nil:
				logger.Info("Metric", zap.String("name", family.GetName()), zap.Float64("value", metric.GetGauge().GetValue()))
			case metric.GetHistogram() != nil:
				logger.Info("Metric", zap.String("name", family.GetName()), zap.Uint64("count", metric.GetHistogram().GetSampleCount()))
			}
		}
	}
}
