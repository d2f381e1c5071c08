package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
database:
  user: mech
  password: secret
  database: mech_dispatch
rabbitmq:
  user: guest
  password: guest
`

func TestLoadFromFile(t *testing.T) {
	t.Setenv("DB_PASSWORD", "from-env")

	path := writeConfig(t, `
# service configuration
database:
  host: db.internal
  port: 5433
  user: mech
  password: ${DB_PASSWORD}
  database: mech_dispatch
redis:
  host: "cache.internal"
  port: 6380
  db: 2
rabbitmq:
  user: 'mq-user'
  password: mq-pass
services:
  booking_service: 8080
  tracking_service: 8081
  admin_service: 8084
jwt:
  secret_key: test-secret
tracking:
  sample_interval_seconds: 5
  eta_refresh_seconds: 20
  position_timeout_seconds: 3
  avg_speed_kmh: 35.5
`)

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "from-env", cfg.Database.Password, "${VAR} scalars resolve from the environment")
	assert.Equal(t, "cache.internal", cfg.Redis.Host, "double quotes are stripped")
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, "mq-user", cfg.RabbitMQ.User, "single quotes are stripped")
	assert.Equal(t, 8080, cfg.Services.BookingServicePort)
	assert.Equal(t, 8081, cfg.Services.TrackingServicePort)
	assert.Equal(t, 8084, cfg.Services.AdminServicePort)
	assert.Equal(t, "test-secret", cfg.JWT.SecretKey)
	assert.Equal(t, 35.5, cfg.Tracking.AvgSpeedKmh)

	assert.Equal(t, 5*time.Second, cfg.SampleInterval())
	assert.Equal(t, 20*time.Second, cfg.ETARefreshInterval())
	assert.Equal(t, 3*time.Second, cfg.PositionTimeout())
}

func TestLoadFromFileDefaults(t *testing.T) {
	cfg, err := LoadFromFile(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, 6379, cfg.Redis.Port)
	assert.Equal(t, 5672, cfg.RabbitMQ.Port)
	assert.Equal(t, 3000, cfg.Services.BookingServicePort)
	assert.Equal(t, 3001, cfg.Services.TrackingServicePort)
	assert.Equal(t, 3004, cfg.Services.AdminServicePort)
	assert.Equal(t, 10, cfg.Tracking.SampleIntervalSeconds)
	assert.Equal(t, 15, cfg.Tracking.ETARefreshSeconds)
	assert.Equal(t, 5, cfg.Tracking.PositionTimeoutSeconds)
	assert.Equal(t, 40.0, cfg.Tracking.AvgSpeedKmh)
	assert.NotEmpty(t, cfg.JWT.SecretKey, "a secret is generated when none is configured")
}

func TestLoadFromFileValidation(t *testing.T) {
	t.Run("missing required credentials", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, `
database:
  user: mech
  database: mech_dispatch
rabbitmq:
  user: guest
  password: guest
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "database.password is required")
	})

	t.Run("port out of range", func(t *testing.T) {
		_, err := LoadFromFile(writeConfig(t, minimalConfig+`
services:
  booking_service: 70000
`))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "services.booking_service")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})
}

func TestParseYAMLErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"unknown top-level key", "storage:\n  host: x\n", "unknown top-level key"},
		{"duplicate section", "database:\n  user: a\ndatabase:\n  user: b\n", "duplicate"},
		{"key without section", "  host: x\n", "key without a section"},
		{"unknown key in section", "redis:\n  hostname: x\n", "unknown key in redis"},
		{"non-integer port", "database:\n  port: abc\n", "must be int"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var cfg Config
			err := parseYAML(strings.NewReader(tc.in), &cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestResolveScalar(t *testing.T) {
	t.Setenv("MECH_TEST_VAR", "resolved")

	assert.Equal(t, "plain", resolveScalar("plain"))
	assert.Equal(t, "quoted", resolveScalar(`"quoted"`))
	assert.Equal(t, "quoted", resolveScalar("'quoted'"))
	assert.Equal(t, "resolved", resolveScalar("${MECH_TEST_VAR}"))
	assert.Equal(t, "", resolveScalar("${MECH_TEST_UNSET}"), "unset variables resolve to empty")
}
