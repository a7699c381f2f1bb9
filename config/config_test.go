package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spacewars/protocol"
)

// noEnvFile points the loader at a file that does not exist
func noEnvFile(t *testing.T) {
	t.Setenv("SPACEWARS_ENV_FILE", filepath.Join(t.TempDir(), "missing.env"))
}

func TestLoadDefaults(t *testing.T) {
	noEnvFile(t)
	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, protocol.DefaultName, cfg.Name)
	assert.Equal(t, ":4280", cfg.ListenAddr())
}

func TestLoadEnvAndFlags(t *testing.T) {
	noEnvFile(t)
	t.Setenv("SPACEWARS_NAME", "env name")
	t.Setenv("SPACEWARS_TICK", "20ms")
	t.Setenv("SPACEWARS_MAX_CLIENTS", "8")

	cfg, err := Load([]string{"-name", "flag name", "-game-port", "5000"})
	require.NoError(t, err)
	assert.Equal(t, "flag name", cfg.Name)
	assert.Equal(t, 20*time.Millisecond, cfg.Tick)
	assert.Equal(t, 8, cfg.MaxClients)
	assert.Equal(t, 5000, cfg.GamePort)
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("SPACEWARS_EVENTS_DB=events.db\nSPACEWARS_DISCOVERY_PORT=4380\n"), 0o644))
	t.Setenv("SPACEWARS_ENV_FILE", path)
	t.Cleanup(func() {
		os.Unsetenv("SPACEWARS_EVENTS_DB")
		os.Unsetenv("SPACEWARS_DISCOVERY_PORT")
	})

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "events.db", cfg.EventsDB)
	assert.Equal(t, ":4380", cfg.ListenAddr())
}

func TestLoadInvalid(t *testing.T) {
	noEnvFile(t)
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{name: "bad port env", env: map[string]string{"SPACEWARS_GAME_PORT": "abc"}},
		{name: "bad tick env", env: map[string]string{"SPACEWARS_TICK": "soon"}},
		{name: "port range", args: []string{"-game-port", "70000"}},
		{name: "zero tick", args: []string{"-tick", "0s"}},
		{name: "no clients", args: []string{"-max-clients", "0"}},
		{name: "reserved name", args: []string{"-name", protocol.QueryToken}},
		{name: "unicast group", args: []string{"-group", "10.1.1.1"}},
		{name: "unknown flag", args: []string{"-bogus"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(tt.args)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestEmptyGroupAllowed(t *testing.T) {
	noEnvFile(t)
	cfg, err := Load([]string{"-group", ""})
	require.NoError(t, err)
	assert.Empty(t, cfg.Group)
}
