package lmkv

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Giulio2002/lmkv/engine"
	"github.com/Giulio2002/lmkv/internal/fastmap"
	"github.com/Giulio2002/lmkv/internal/handles"
)

// Environment is an open store. It is the root of the handle graph: closing
// it invalidates every Database, Txn and Cursor derived from it.
//
// An Environment is safe for concurrent use. Transactions and cursors
// follow the threading rules of the underlying engine.
type Environment struct {
	id     uuid.UUID
	cfg    Config
	path   string
	temp   bool
	native engine.Env
	log    *slog.Logger

	table   *handles.Table
	ref     handles.Ref
	closing atomic.Bool

	mu     sync.Mutex
	byName map[string]*Database
	byDBI  fastmap.Uint32Map[*Database]
	main   *Database

	closeErr error
}

// Open opens the store described by cfg, creating it when allowed.
func Open(cfg Config) (*Environment, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	backend, err := cfg.backend()
	if err != nil {
		return nil, err
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	env := &Environment{
		id:     uuid.New(),
		cfg:    cfg,
		table:  handles.NewTable(),
		byName: make(map[string]*Database),
	}

	if cfg.Path == "" {
		dir, err := os.MkdirTemp("", "lmkv-")
		if err != nil {
			return nil, fmt.Errorf("create temporary store: %w", err)
		}
		env.path, env.temp = dir, true
	} else {
		abs, err := filepath.Abs(cfg.Path)
		if err != nil {
			return nil, err
		}
		env.path = abs
		if !cfg.NoSubdir && !cfg.ReadOnly && !cfg.NoCreate {
			if err := os.MkdirAll(abs, 0o755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
	}

	if !claimPath(env.path) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyOpen, env.path)
	}
	env.log = cfg.Logger.With("env", env.id.String(), "path", env.path)

	native, err := backend.Open(env.path, engine.Config{
		Flags:      cfg.envFlags(),
		MapSize:    cfg.MapSize,
		MaxReaders: cfg.MaxReaders,
		MaxDBs:     cfg.MaxDBs,
		Mode:       cfg.Mode,
		Label:      env.id.String(),
	})
	if err != nil {
		env.discard()
		return nil, wrap("open "+env.path, err)
	}
	env.native = native

	env.ref = env.table.Root(env.release)
	if env.main, err = env.openDatabase("", DatabaseOptions{NoCreate: true}); err != nil {
		env.table.Invalidate(env.ref)
		return nil, err
	}

	openPaths.Store(env.path, env)
	env.log.Debug("environment opened", "engine", cfg.Engine, "map_size", cfg.MapSize, "read_only", cfg.ReadOnly)
	return env, nil
}

// discard undoes the filesystem side effects of a failed Open.
func (env *Environment) discard() {
	if env.temp {
		os.RemoveAll(env.path)
	}
	releasePath(env.path)
}

func (env *Environment) release() {
	if err := env.native.Close(); err != nil {
		env.closeErr = wrap("close", err)
		env.log.Warn("engine close failed", "err", err)
	}
	if env.temp {
		if err := os.RemoveAll(env.path); err != nil {
			env.log.Warn("remove temporary store failed", "err", err)
		}
	}
	env.mu.Lock()
	env.byName = make(map[string]*Database)
	env.byDBI.Clear()
	env.mu.Unlock()
	releasePath(env.path)
	env.log.Debug("environment closed")
}

// Close invalidates every handle derived from the environment and closes
// the store. Open transactions are aborted first. Calling Close again is a
// no-op.
func (env *Environment) Close() error {
	if !env.ref.Live() {
		return nil
	}
	env.closing.Store(true)
	if !env.table.Invalidate(env.ref) {
		return nil
	}
	return env.closeErr
}

func (env *Environment) live() error {
	if !env.ref.Live() {
		return ErrInvalidState
	}
	return nil
}

// Path returns the absolute store path.
func (env *Environment) Path() string { return env.path }

// ID is the unique identifier assigned at Open. Engines use it as their
// diagnostic label.
func (env *Environment) ID() uuid.UUID { return env.id }

// Temporary reports whether the store is removed on Close.
func (env *Environment) Temporary() bool { return env.temp }

// ReadOnly reports whether the environment was opened read-only.
func (env *Environment) ReadOnly() bool { return env.cfg.ReadOnly }

// MaxReaders returns the configured reader slot count.
func (env *Environment) MaxReaders() int { return env.cfg.MaxReaders }

// Config returns the effective configuration.
func (env *Environment) Config() Config { return env.cfg }

// Handles returns the number of live handles in the environment's graph,
// the environment itself included. It is 0 once the environment is closed.
func (env *Environment) Handles() int { return env.table.Len() }

// Copy writes a consistent snapshot of the store into dir, which must
// exist.
func (env *Environment) Copy(dir string) error {
	if err := env.live(); err != nil {
		return err
	}
	if err := env.native.Copy(dir); err != nil {
		return wrap("copy", err)
	}
	env.log.Debug("environment copied", "dst", dir)
	return nil
}

// Sync flushes buffered data to disk. With force set, the flush happens
// even when the environment was opened with relaxed durability.
func (env *Environment) Sync(force bool) error {
	if err := env.live(); err != nil {
		return err
	}
	return wrap("sync", env.native.Sync(force))
}

// Stat returns statistics of the default database's tree.
func (env *Environment) Stat() (engine.Stat, error) {
	if err := env.live(); err != nil {
		return engine.Stat{}, err
	}
	st, err := env.native.Stat()
	return st, wrap("stat", err)
}

// Info returns environment-wide information.
func (env *Environment) Info() (engine.Info, error) {
	if err := env.live(); err != nil {
		return engine.Info{}, err
	}
	info, err := env.native.Info()
	return info, wrap("info", err)
}

// Main returns the default database.
func (env *Environment) Main() (*Database, error) {
	if err := env.live(); err != nil {
		return nil, err
	}
	return env.main, nil
}

// String describes the environment for logs.
func (env *Environment) String() string {
	state := "open"
	if !env.ref.Live() {
		state = "closed"
	}
	return fmt.Sprintf("Environment(%s, %s)", env.path, state)
}

func (env *Environment) owns(db *Database) error {
	if db.env != env {
		return ErrForeignHandle
	}
	if !db.ref.Live() {
		return ErrInvalidState
	}
	return nil
}
