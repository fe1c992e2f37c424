package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chdir переходит в пустой каталог, чтобы не подхватить чужой .env или config/api.yaml.
func chdir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdir(t)
	t.Setenv("CONFIG_PATH", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, 7*24*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 20, cfg.Messages.DefaultPageSize)
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes())
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.CORSOrigins())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9000"
  read_timeout: 5s
database:
  driver: sqlite
  path: /tmp/chat.db
websocket:
  max_connections: 50
messages:
  default_page_size: 30
  max_page_size: 60
cors_allowed_origins: "https://a.example, https://b.example"
`), 0o600))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("MAX_WS_CONNECTIONS", "75")
	t.Setenv("TOKEN_TTL", "2h")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout, "unset keys keep defaults")
	assert.Equal(t, DriverSQLite, cfg.Database.Driver)
	assert.Equal(t, "/tmp/chat.db", cfg.Database.Path)
	assert.Equal(t, 75, cfg.WS.MaxConnections, "env wins over yaml")
	assert.Equal(t, 2*time.Hour, cfg.Auth.TokenTTL)
	assert.Equal(t, 30, cfg.Messages.DefaultPageSize)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins())
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdir(t)
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("LOG_LEVEL", "")
	os.Unsetenv("LOG_LEVEL")
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("LOG_LEVEL=debug\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("LOG_LEVEL") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadBadYAML(t *testing.T) {
	dir := chdir(t)
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o600))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, true},
		{"sqlite without path", func(c *Config) { c.Database.Driver = DriverSQLite; c.Database.Path = "" }, true},
		{"empty secret", func(c *Config) { c.Auth.JWTSecret = "" }, true},
		{"page sizes", func(c *Config) { c.Messages.MaxPageSize = 5 }, true},
		{"production dev secret", func(c *Config) { c.Env = "production" }, true},
		{"production dev database", func(c *Config) { c.Env = "production"; c.Auth.JWTSecret = "s3cr3t" }, true},
		{"production ok", func(c *Config) {
			c.Env = "production"
			c.Auth.JWTSecret = "s3cr3t"
			c.Database.URL = "postgres://prod/chat"
		}, false},
		{"production sqlite", func(c *Config) {
			c.Env = "production"
			c.Auth.JWTSecret = "s3cr3t"
			c.Database.Driver = DriverSQLite
		}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			err := c.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
