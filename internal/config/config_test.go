package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func validBase() *Config {
	cfg := Default()
	cfg.Supabase.URL = "https://proj.supabase.co"
	cfg.Supabase.AnonKey = "anon"
	return cfg
}

func TestDefaultsNeedSupabaseEndpoint(t *testing.T) {
	err := Default().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "supabase.url is required")

	assert.NoError(t, validBase().Validate())
}

func TestLoadLayersYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lens.yaml", `
environment: staging
server:
  port: 9000
  shutdownTimeout: 5s
supabase:
  url: https://proj.supabase.co
  anonKey: from-file
feed:
  window: 25
media:
  jpegQuality: 70
`)
	t.Setenv("LENS_SUPABASE_ANON_KEY", "from-env")
	t.Setenv("LENS_MEDIA_MAX_FILES", "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Staging, cfg.Environment)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "from-env", cfg.Supabase.AnonKey, "env wins over file")
	assert.Equal(t, 25, cfg.Feed.Window)
	assert.Equal(t, 70, cfg.Media.JPEGQuality)
	assert.Equal(t, 3, cfg.Media.MaxFiles)
	assert.Equal(t, "memories", cfg.Supabase.Bucket, "unset values keep defaults")
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeFile(t, t.TempDir(), "lens.yaml", "serverr:\n  port: 1\n")
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"window must be positive", func(c *Config) { c.Feed.Window = 0 }, "feed.window"},
		{"quality upper bound", func(c *Config) { c.Media.JPEGQuality = 101 }, "media.jpegquality"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "mysql" }, "store.driver"},
		{"postgres needs dsn", func(c *Config) { c.Store.Driver = DriverPostgres }, "postgresDSN"},
		{"tracing needs endpoint", func(c *Config) { c.Tracing.Enabled = true }, "tracing.endpoint"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validBase()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestLocationCatalogDefaults(t *testing.T) {
	c, err := NewLocationCatalog(LocationsConfig{Defaults: []string{" Gym ", "Beach", "Gym", ""}}, zap.NewNop())
	require.NoError(t, err)
	defer c.Stop()

	assert.Equal(t, []string{"Gym", "Beach"}, c.List())
}

func TestLocationCatalogFileFormats(t *testing.T) {
	dir := t.TempDir()

	bare := writeFile(t, dir, "bare.yaml", "- The Cafe\n- Dorms\n")
	locs, err := readLocationsFile(bare)
	require.NoError(t, err)
	assert.Equal(t, []string{"The Cafe", "Dorms"}, locs)

	doc := writeFile(t, dir, "doc.yaml", "locations:\n  - Poolside\n")
	locs, err = readLocationsFile(doc)
	require.NoError(t, err)
	assert.Equal(t, []string{"Poolside"}, locs)

	empty := writeFile(t, dir, "empty.yaml", "locations: []\n")
	_, err = readLocationsFile(empty)
	assert.Error(t, err)
}

func TestLocationCatalogReloadsOnChange(t *testing.T) {
	defer goleak.VerifyNone(t)

	dir := t.TempDir()
	path := writeFile(t, dir, "locations.yaml", "- Gym\n")

	c, err := NewLocationCatalog(LocationsConfig{File: path, Defaults: DefaultLocations}, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []string{"Gym"}, c.List())

	changed := make(chan []string, 1)
	c.OnChange(func(locs []string) { changed <- locs })

	require.NoError(t, os.WriteFile(path, []byte("- Gym\n- Beach\n"), 0o600))

	select {
	case locs := <-changed:
		assert.Equal(t, []string{"Gym", "Beach"}, locs)
	case <-time.After(5 * time.Second):
		t.Fatal("catalog did not reload")
	}
	assert.Equal(t, []string{"Gym", "Beach"}, c.List())

	c.Stop()
	c.Stop()
}
