package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/germanamz/silk/pkg/archive"
	"github.com/germanamz/silk/pkg/dispatch"
	"github.com/germanamz/silk/pkg/modeladapter"
	"github.com/germanamz/silk/pkg/preferences"
	"github.com/germanamz/silk/pkg/server"
	"github.com/germanamz/silk/pkg/tools/toolbox"
)

// Engine is the composition root: it builds every collaborator once from
// configuration and hands them to the frontends (HTTP server, MCP server, CLI).
type Engine struct {
	cfg        Config
	log        *slog.Logger
	provider   modeladapter.Provider
	closers    []io.Closer
	archive    *archive.Builder
	tools      *toolbox.ToolBox
	dispatcher *dispatch.Dispatcher
	prefs      *preferences.Service
}

// New creates an Engine from the given configuration. It validates the config,
// creates the provider adapter, the archive builder and the preference store.
// A nil logger falls back to slog.Default().
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	e := &Engine{cfg: cfg, log: logger}

	provider, inner, err := buildProvider(ctx, cfg.Provider)
	if err != nil {
		return nil, err
	}
	e.provider = provider
	if c, ok := inner.(io.Closer); ok {
		e.closers = append(e.closers, c)
	}

	e.archive = NewArchive(cfg.Archive, logger)

	e.tools = toolbox.New()
	e.tools.Register(e.archive.Tool())

	e.dispatcher = dispatch.New(dispatch.Options{
		Provider:         e.provider,
		Archiver:         e.archive,
		Tools:            e.tools,
		ToolName:         archive.ToolName,
		DisableToolCalls: cfg.Provider.DisableToolCalls,
		Logger:           logger.With(slog.String("component", "dispatch")),
	})

	store, err := openPreferences(ctx, cfg.Preferences)
	if err != nil {
		_ = e.Close(ctx)
		return nil, err
	}
	e.prefs = preferences.NewService(store)

	logger.InfoContext(ctx, "engine ready",
		slog.String("provider", cfg.Provider.Kind),
		slog.String("preferences", cfg.Preferences.Backend),
		slog.String("archive_root", cfg.Archive.Root),
	)

	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Provider returns the (possibly rate limited) model provider.
func (e *Engine) Provider() modeladapter.Provider { return e.provider }

// Archive returns the project archive builder.
func (e *Engine) Archive() *archive.Builder { return e.archive }

// Tools returns the toolbox offered to the model.
func (e *Engine) Tools() *toolbox.ToolBox { return e.tools }

// Dispatcher returns the request dispatcher.
func (e *Engine) Dispatcher() *dispatch.Dispatcher { return e.dispatcher }

// Preferences returns the preference service.
func (e *Engine) Preferences() *preferences.Service { return e.prefs }

// Server builds the HTTP server. A nil registry gets a fresh one.
func (e *Engine) Server(reg *prometheus.Registry) *server.Server {
	timeout, _ := time.ParseDuration(e.cfg.Server.ShutdownTimeout) // Checked by Validate.

	return server.New(server.Options{
		Dispatcher:      e.dispatcher,
		Preferences:     e.prefs,
		IdentityHeader:  e.cfg.Identity.Header,
		MaxBodyBytes:    e.cfg.Server.MaxBodyBytes,
		ShutdownTimeout: timeout,
		Registry:        reg,
		Logger:          e.log.With(slog.String("component", "server")),
	})
}

// Close releases the preference store and the provider client.
func (e *Engine) Close(ctx context.Context) error {
	var errs []error

	if e.prefs != nil {
		if err := e.prefs.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	for _, c := range e.closers {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	e.closers = nil

	return errors.Join(errs...)
}

// NewArchive builds the project archive builder described by cfg.
func NewArchive(cfg ArchiveConfig, logger *slog.Logger) *archive.Builder {
	if logger == nil {
		logger = slog.Default()
	}

	return archive.New(archive.Options{
		Root: cfg.Root,
		Name: cfg.Name,
		Manifest: archive.Manifest{
			Files:            cfg.Files,
			Include:          cfg.Include,
			RespectGitignore: cfg.RespectGitignore,
		},
		Readers: cfg.Readers,
		Logger:  logger.With(slog.String("component", "archive")),
	})
}

func openPreferences(ctx context.Context, cfg PreferencesConfig) (preferences.Store, error) {
	switch cfg.Backend {
	case "", BackendMemory:
		return preferences.NewMemoryStore(), nil
	case BackendSQLite:
		return preferences.OpenSQLite(ctx, cfg.Path)
	case BackendPostgres:
		return preferences.OpenPostgres(ctx, cfg.DSN)
	case BackendMongo:
		return preferences.OpenMongo(ctx, cfg.URI, cfg.Database)
	default:
		return nil, fmt.Errorf("engine: unknown preferences backend %q", cfg.Backend)
	}
}

// NewLogger builds a slog logger writing to w in the configured format.
func NewLogger(cfg LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}

	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("engine: config: unknown log level %q", s)
	}
}
