package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openkvm/keywave/pkg/logger"
)

type loaderTarget struct {
	DeviceName  string         `json:"device_name"`
	ReportRate  int            `json:"report_rate"`
	Sensitivity float64        `json:"sensitivity"`
	Reconnect   bool           `json:"reconnect"`
	Allowed     []string       `json:"allowed"`
	Logging     *logger.Config `json:"logging,omitempty"`

	invalid bool
}

func (l *loaderTarget) Validate() error {
	if l.invalid || l.ReportRate < 0 {
		return os.ErrInvalid
	}

	return nil
}

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "keywave.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadAndValidateFromFile(t *testing.T) {
	path := writeConfigFile(t, `{
		"device_name": "Keywave Input",
		"report_rate": 60,
		"sensitivity": 1.5,
		"reconnect": true,
		"allowed": ["AA:BB:CC:DD:EE:FF"],
		"logging": {"level": "debug"}
	}`)

	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), path, &got))

	assert.Equal(t, "Keywave Input", got.DeviceName)
	assert.Equal(t, 60, got.ReportRate)
	assert.InDelta(t, 1.5, got.Sensitivity, 0.001)
	assert.True(t, got.Reconnect)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:FF"}, got.Allowed)
	require.NotNil(t, got.Logging)
	assert.Equal(t, "debug", got.Logging.Level)
}

func TestLoadAndValidateMissingFile(t *testing.T) {
	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), "/nonexistent/keywave.json", &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read file")
}

func TestLoadAndValidateMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{"device_name": `)

	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), path, &got)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal JSON")
}

func TestLoadAndValidateRunsValidator(t *testing.T) {
	path := writeConfigFile(t, `{"report_rate": -1}`)

	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	require.Error(t, c.LoadAndValidate(context.Background(), path, &got))
}

func TestLoadAndValidateRejectsUnknownSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "carrier-pigeon")

	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	err := c.LoadAndValidate(context.Background(), "ignored.json", &got)
	require.ErrorIs(t, err, errInvalidConfigSource)
}

func TestEnvLoaderIndividualVariables(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("KEYWAVE_DEVICE_NAME", "Desk Bridge")
	t.Setenv("KEYWAVE_REPORT_RATE", "120")
	t.Setenv("KEYWAVE_SENSITIVITY", "0.75")
	t.Setenv("KEYWAVE_RECONNECT", "true")
	t.Setenv("KEYWAVE_ALLOWED", "AA:BB:CC:DD:EE:01, AA:BB:CC:DD:EE:02")
	t.Setenv("KEYWAVE_LOGGING_LEVEL", "warn")

	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), "", &got))

	assert.Equal(t, "Desk Bridge", got.DeviceName)
	assert.Equal(t, 120, got.ReportRate)
	assert.InDelta(t, 0.75, got.Sensitivity, 0.001)
	assert.True(t, got.Reconnect)
	assert.Equal(t, []string{"AA:BB:CC:DD:EE:01", "AA:BB:CC:DD:EE:02"}, got.Allowed)
	require.NotNil(t, got.Logging)
	assert.Equal(t, "warn", got.Logging.Level)
}

func TestEnvLoaderConfigJSONTakesPrecedence(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("KEYWAVE_CONFIG_JSON", `{"device_name": "From JSON", "report_rate": 30}`)
	t.Setenv("KEYWAVE_DEVICE_NAME", "From Vars")

	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), "", &got))

	assert.Equal(t, "From JSON", got.DeviceName)
	assert.Equal(t, 30, got.ReportRate)
}

func TestEnvLoaderCustomPrefix(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "BRIDGE_")
	t.Setenv("BRIDGE_DEVICE_NAME", "Prefixed")

	var got loaderTarget

	c := NewConfig(logger.NewTestLogger())
	require.NoError(t, c.LoadAndValidate(context.Background(), "", &got))

	assert.Equal(t, "Prefixed", got.DeviceName)
}

func TestEnvLoaderRejectsNonPointer(t *testing.T) {
	loader := NewEnvConfigLoader(logger.NewTestLogger(), "KEYWAVE_")

	err := loader.Load(context.Background(), "", loaderTarget{})
	require.ErrorIs(t, err, ErrDstMustBeNonNilPointer)

	var notStruct int

	err = loader.Load(context.Background(), "", &notStruct)
	require.ErrorIs(t, err, ErrDstMustBePointerToStruct)
}
