package lmkv

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/tailscale/hujson"

	"github.com/Giulio2002/lmkv/engine"
)

// Defaults applied by Open to zero-valued Config fields.
const (
	DefaultMapSize    = 10 << 20
	DefaultMaxReaders = 126
	DefaultMode       = os.FileMode(0o644)

	// MinMapSize is the smallest accepted MapSize.
	MinMapSize = 64 << 10
)

var pageSize = int64(os.Getpagesize())

// Config describes how to open an Environment. The zero value opens a
// temporary store with default limits on the default engine.
type Config struct {
	// Path is the store directory, or the file prefix when NoSubdir is set.
	// Empty allocates a temporary directory removed by Close.
	Path string `yaml:"path" json:"path"`

	// MapSize is the store capacity in bytes, rounded up to the OS page size.
	MapSize int64 `yaml:"map_size" json:"map_size"`

	NoSubdir bool `yaml:"no_subdir" json:"no_subdir"`
	ReadOnly bool `yaml:"read_only" json:"read_only"`

	// Durability. All three trade crash safety for commit speed.
	NoMetaSync bool `yaml:"no_meta_sync" json:"no_meta_sync"`
	NoSync     bool `yaml:"no_sync" json:"no_sync"`
	MapAsync   bool `yaml:"map_async" json:"map_async"`

	// Mode is the permission of created files.
	Mode os.FileMode `yaml:"mode" json:"mode"`

	// NoCreate refuses to create a missing store directory.
	NoCreate bool `yaml:"no_create" json:"no_create"`

	MaxReaders int `yaml:"max_readers" json:"max_readers"`
	// MaxDBs is the number of named databases; 0 allows only the default one.
	MaxDBs int `yaml:"max_dbs" json:"max_dbs"`

	// Engine names a registered engine; see engine.Names.
	Engine string `yaml:"engine" json:"engine"`

	// Backend, when set, is used instead of the registered engine.
	Backend engine.Engine `yaml:"-" json:"-"`

	// Logger receives lifecycle events. Defaults to slog.Default().
	Logger *slog.Logger `yaml:"-" json:"-"`
}

// DefaultConfig returns a Config with every default filled in.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MapSize == 0 {
		c.MapSize = DefaultMapSize
	}
	if c.MaxReaders == 0 {
		c.MaxReaders = DefaultMaxReaders
	}
	if c.Mode == 0 {
		c.Mode = DefaultMode
	}
	if c.Engine == "" && c.Backend == nil {
		c.Engine = engine.DefaultName
	}
	if c.MapSize > 0 && c.MapSize%pageSize != 0 {
		c.MapSize = (c.MapSize/pageSize + 1) * pageSize
	}
	return c
}

// Validate reports conflicting or out-of-range settings.
func (c Config) Validate() error {
	switch {
	case c.MapSize < 0:
		return fmt.Errorf("%w: negative map size %d", ErrInvalidConfig, c.MapSize)
	case c.MapSize > 0 && c.MapSize < MinMapSize:
		return fmt.Errorf("%w: map size %d below minimum %d", ErrInvalidConfig, c.MapSize, MinMapSize)
	case c.MaxReaders < 0:
		return fmt.Errorf("%w: negative max readers %d", ErrInvalidConfig, c.MaxReaders)
	case c.MaxDBs < 0:
		return fmt.Errorf("%w: negative max dbs %d", ErrInvalidConfig, c.MaxDBs)
	case c.ReadOnly && (c.NoSync || c.NoMetaSync || c.MapAsync):
		return fmt.Errorf("%w: durability options conflict with read-only", ErrInvalidConfig)
	case c.ReadOnly && c.Path == "":
		return fmt.Errorf("%w: read-only requires a path", ErrInvalidConfig)
	case c.NoSubdir && c.Path == "":
		return fmt.Errorf("%w: no-subdir requires a path", ErrInvalidConfig)
	}
	return nil
}

func (c Config) envFlags() engine.EnvFlags {
	var f engine.EnvFlags
	if c.NoSubdir {
		f |= engine.NoSubdir
	}
	if c.ReadOnly {
		f |= engine.ReadOnly
	}
	if c.NoMetaSync {
		f |= engine.NoMetaSync
	}
	if c.NoSync {
		f |= engine.NoSync
	}
	if c.MapAsync {
		f |= engine.MapAsync
	}
	return f
}

func (c Config) backend() (engine.Engine, error) {
	if c.Backend != nil {
		return c.Backend, nil
	}
	e, ok := engine.Lookup(c.Engine)
	if !ok {
		return nil, fmt.Errorf("%w %q (registered: %s)", ErrUnknownEngine, c.Engine, strings.Join(engine.Names(), ", "))
	}
	return e, nil
}

// LoadConfig reads a Config from a YAML (.yaml, .yml) or JSON file. JSON
// files may carry comments and trailing commas (.json, .jsonc, .hujson).
// Fields missing from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := DefaultConfig()
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json", ".jsonc", ".hujson":
		std, err := hujson.Standardize(data)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
		if err := json.Unmarshal(std, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return Config{}, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
	}
	return cfg.withDefaults(), nil
}
