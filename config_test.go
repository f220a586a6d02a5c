package lmkv

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"zero", Config{}, true},
		{"defaults", DefaultConfig(), true},
		{"negative map size", Config{MapSize: -1}, false},
		{"tiny map size", Config{MapSize: 4096}, false},
		{"negative readers", Config{MaxReaders: -1}, false},
		{"negative dbs", Config{MaxDBs: -2}, false},
		{"read-only with no-sync", Config{Path: "x", ReadOnly: true, NoSync: true}, false},
		{"read-only without path", Config{ReadOnly: true}, false},
		{"no-subdir without path", Config{NoSubdir: true}, false},
		{"read-only", Config{Path: "x", ReadOnly: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok && err != nil {
				t.Errorf("Validate() = %v, want nil", err)
			}
			if !tt.ok && !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(Config{MapSize: 1})
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	require.Equal(t, int64(DefaultMapSize), cfg.MapSize)
	require.Equal(t, DefaultMaxReaders, cfg.MaxReaders)
	require.Equal(t, DefaultMode, cfg.Mode)
	require.Equal(t, "mdbx", cfg.Engine)

	odd := Config{MapSize: MinMapSize + 1}.withDefaults()
	require.Zero(t, odd.MapSize%pageSize, "map size not page aligned")
	require.Greater(t, odd.MapSize, int64(MinMapSize))
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lmkv.yaml")
	data := `
path: /var/lib/lmkv
map_size: 1073741824
max_dbs: 8
engine: bolt
no_sync: true
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/lmkv", cfg.Path)
	require.Equal(t, int64(1<<30), cfg.MapSize)
	require.Equal(t, 8, cfg.MaxDBs)
	require.Equal(t, "bolt", cfg.Engine)
	require.True(t, cfg.NoSync)
	require.Equal(t, DefaultMaxReaders, cfg.MaxReaders)
}

func TestLoadConfigJSONC(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lmkv.jsonc")
	data := `{
	// readers for the API pods
	"max_readers": 512,
	"read_only": true,
	"path": "/srv/db",
}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, 512, cfg.MaxReaders)
	require.True(t, cfg.ReadOnly)
	require.Equal(t, "/srv/db", cfg.Path)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)

	toml := filepath.Join(dir, "lmkv.toml")
	require.NoError(t, os.WriteFile(toml, []byte("x = 1"), 0o644))
	_, err = LoadConfig(toml)
	require.ErrorIs(t, err, ErrInvalidConfig)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))
	_, err = LoadConfig(bad)
	require.Error(t, err)
}
