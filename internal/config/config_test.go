package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"AUTOBOOK_CONFIG", "PORT", "STORE_DRIVER", "DATABASE_URL", "SQLITE_PATH",
	"CORS_ORIGINS", "LOG_LEVEL", "IDEMPOTENCY_RETENTION", "GATEWAY_DECLINE_ABOVE_MINOR",
}

// clearEnv blanks every variable Load reads. A blank variable still
// counts as set, so no stray .env file can leak into the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, DriverPostgres, cfg.StoreDriver)
	assert.Equal(t, defaultDatabaseURL, cfg.DatabaseURL)
	assert.Equal(t, []string{"http://localhost:5173", "http://127.0.0.1:5173"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.IdempotencyRetention)
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "autobook.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9090"
store_driver: sqlite
sqlite_path: /var/lib/autobook.db
cors_origins:
  - https://app.example.com
log_level: debug
idempotency_retention: 24h
gateway_decline_above_minor: 50000
`), 0o600))
	t.Setenv("AUTOBOOK_CONFIG", path)
	t.Setenv("PORT", "7070")

	cfg, err := Load(quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "7070", cfg.Port)
	assert.Equal(t, DriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/var/lib/autobook.db", cfg.SQLitePath)
	assert.Equal(t, []string{"https://app.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyRetention)
	assert.EqualValues(t, 50000, cfg.GatewayDeclineAboveMinor)
	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelDebug, level)
}

func TestLoad_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("STORE_DRIVER", "MEMORY")
	t.Setenv("CORS_ORIGINS", "*, ")
	t.Setenv("IDEMPOTENCY_RETENTION", "90m")
	t.Setenv("GATEWAY_DECLINE_ABOVE_MINOR", "100")

	cfg, err := Load(quietLogger())
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Equal(t, 90*time.Minute, cfg.IdempotencyRetention)
	assert.EqualValues(t, 100, cfg.GatewayDeclineAboveMinor)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		yaml    string
		wantErr string
	}{
		{name: "unknown driver", env: map[string]string{"STORE_DRIVER": "mongo"}, wantErr: "unknown store driver"},
		{name: "bad retention", env: map[string]string{"IDEMPOTENCY_RETENTION": "soon"}, wantErr: "IDEMPOTENCY_RETENTION"},
		{name: "negative retention", env: map[string]string{"IDEMPOTENCY_RETENTION": "-1h"}, wantErr: "negative"},
		{name: "bad threshold", env: map[string]string{"GATEWAY_DECLINE_ABOVE_MINOR": "1.5"}, wantErr: "GATEWAY_DECLINE_ABOVE_MINOR"},
		{name: "bad log level", env: map[string]string{"LOG_LEVEL": "loud"}, wantErr: "invalid log level"},
		{name: "unknown yaml field", yaml: "prot: 9090\n", wantErr: "parse config file"},
		{name: "missing yaml file", env: map[string]string{"AUTOBOOK_CONFIG": "/nonexistent/autobook.yaml"}, wantErr: "read config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			if tt.yaml != "" {
				path := filepath.Join(t.TempDir(), "autobook.yaml")
				require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o600))
				t.Setenv("AUTOBOOK_CONFIG", path)
			}
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := Load(quietLogger())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseEnvFile(t *testing.T) {
	keys := []string{"AUTOBOOK_TEST_PLAIN", "AUTOBOOK_TEST_EXPORTED", "AUTOBOOK_TEST_QUOTED", "AUTOBOOK_TEST_SINGLE"}
	for _, k := range keys {
		k := k
		prev, had := os.LookupEnv(k)
		require.NoError(t, os.Unsetenv(k))
		t.Cleanup(func() {
			if had {
				_ = os.Setenv(k, prev)
			} else {
				_ = os.Unsetenv(k)
			}
		})
	}
	t.Setenv("AUTOBOOK_TEST_PRESET", "from-env")

	input := "\ufeffAUTOBOOK_TEST_PLAIN=plain\n" +
		"# comment\n" +
		"\n" +
		"export AUTOBOOK_TEST_EXPORTED = exported\n" +
		`AUTOBOOK_TEST_QUOTED="a b"` + "\n" +
		"AUTOBOOK_TEST_SINGLE='x'\n" +
		"AUTOBOOK_TEST_PRESET=from-file\n" +
		"not a pair\n" +
		"=missing-key\n"

	require.NoError(t, parseEnvFile(quietLogger(), strings.NewReader(input)))
	assert.Equal(t, "plain", os.Getenv("AUTOBOOK_TEST_PLAIN"))
	assert.Equal(t, "exported", os.Getenv("AUTOBOOK_TEST_EXPORTED"))
	assert.Equal(t, "a b", os.Getenv("AUTOBOOK_TEST_QUOTED"))
	assert.Equal(t, "x", os.Getenv("AUTOBOOK_TEST_SINGLE"))
	assert.Equal(t, "from-env", os.Getenv("AUTOBOOK_TEST_PRESET"))
}

func TestFindEnvFile(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	assert.Empty(t, findEnvFile(nested))

	envPath := filepath.Join(root, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("PORT=1\n"), 0o600))
	assert.Equal(t, envPath, findEnvFile(nested))
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "a", want: []string{"a"}},
		{in: " a , b ,,c ", want: []string{"a", "b", "c"}},
		{in: ",", want: []string{}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseCSV(tt.in), "input %q", tt.in)
	}
}

func TestTrimQuotes(t *testing.T) {
	assert.Equal(t, "x", trimQuotes(`"x"`))
	assert.Equal(t, "x", trimQuotes(`'x'`))
	assert.Equal(t, `"x'`, trimQuotes(`"x'`))
	assert.Equal(t, `"`, trimQuotes(`"`))
}
