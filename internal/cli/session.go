package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/koppla/internal/backend/local"
	"github.com/roach88/koppla/internal/backend/rest"
	"github.com/roach88/koppla/internal/config"
	"github.com/roach88/koppla/internal/editor"
	"github.com/roach88/koppla/internal/engine"
	"github.com/roach88/koppla/internal/kernel"
	"github.com/roach88/koppla/internal/outbox"
	"github.com/roach88/koppla/internal/registry"
	"github.com/roach88/koppla/internal/store"
)

// session is one editing session against the configured backend.
type session struct {
	cfg    config.Config
	logger *slog.Logger
	store  *engine.Store
	editor *editor.Editor
	outbox outbox.Outbox
	// local is set when the project lives in SQLite.
	local *local.Backend
	// closers release databases after the store's final flush, in order.
	closers []func() error
}

// openSession loads the config and wires backend, outbox, store and editor.
// The project is not loaded; call init.
func openSession(opts *RootOptions) (*session, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}
	logger := opts.Logger()
	s := &session{cfg: cfg, logger: logger}

	backend, err := s.openBackend()
	if err != nil {
		s.closeAll()
		return nil, WrapExitError(ExitCommandError, ErrCodeBackend, err)
	}
	ob, err := s.openOutbox()
	if err != nil {
		s.closeAll()
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, err)
	}

	s.outbox = ob
	s.store = engine.New(backend,
		engine.WithLogger(logger),
		engine.WithOutbox(ob),
		engine.WithRegistry(registry.New(registry.WithPalette(cfg.Palette))),
		engine.WithThrottle(cfg.Sync.Throttle),
		engine.WithRetry(cfg.Sync.Retry.Initial, cfg.Sync.Retry.Max, cfg.Sync.Retry.MaxAttempts))
	s.editor = editor.New(kernel.NewGraph(), s.store,
		editor.WithLogger(logger),
		editor.WithGridSize(cfg.Editor.GridSize))
	return s, nil
}

func (s *session) openBackend() (engine.Backend, error) {
	switch s.cfg.Backend {
	case config.BackendLocal:
		db, err := s.openDB(s.cfg.Local.Path)
		if err != nil {
			return nil, fmt.Errorf("open local project: %w", err)
		}
		s.local = local.New(db, local.WithLogger(s.logger))
		return s.local, nil
	default:
		c, err := rest.New(s.cfg.ProjectURL(),
			rest.WithTimeout(s.cfg.HTTP.Timeout),
			rest.WithToken(s.cfg.Token),
			rest.RequireToken(s.cfg.RequireToken),
			rest.WithLogger(s.logger))
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

func (s *session) openOutbox() (outbox.Outbox, error) {
	if s.cfg.Outbox.Path == "" {
		return outbox.NewMemory(), nil
	}
	db, err := s.openDB(s.cfg.Outbox.Path)
	if err != nil {
		return nil, fmt.Errorf("open outbox: %w", err)
	}
	return db, nil
}

// openDB opens a SQLite file and registers it for closing. A file whose
// connection settings did not take hold still opens, with a warning.
func (s *session) openDB(path string) (*store.Store, error) {
	db, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)
	if err := db.Check(context.Background()); err != nil {
		s.logger.Warn("sqlite settings not applied", "path", path, "error", err)
	}
	return db, nil
}

// init replays the outbox and loads the project. Skipped records and failed
// replays are logged; the session stays usable.
func (s *session) init(ctx context.Context) error {
	err := s.editor.Init(ctx)
	if err == nil {
		return nil
	}
	if !syncErrorsOnly(err) {
		return WrapExitError(ExitCommandError, ErrCodeLoad, err)
	}
	s.logger.Warn("project loaded with errors", "error", err)
	return nil
}

// syncErrorsOnly reports whether every error joined in err is a SyncError.
func syncErrorsOnly(err error) bool {
	if j, ok := err.(interface{ Unwrap() []error }); ok {
		for _, inner := range j.Unwrap() {
			if !syncErrorsOnly(inner) {
				return false
			}
		}
		return true
	}
	var se *engine.SyncError
	return errors.As(err, &se)
}

// close flushes everything still queued and releases the databases.
func (s *session) close(ctx context.Context) error {
	var errs []error
	if s.store != nil {
		if err := s.store.Close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	errs = append(errs, s.closeAll())
	return errors.Join(errs...)
}

func (s *session) closeAll() error {
	var errs []error
	for _, c := range s.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	s.closers = nil
	return errors.Join(errs...)
}
