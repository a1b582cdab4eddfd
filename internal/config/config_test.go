package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validConfig = `{
	"http_port": 9000,
	"review_window": "30m",
	"review_warning": "25m",
	"circuit_breaker_threshold": 5,
	"sources": [
		{
			"name": "acme-greenhouse",
			"kind": "greenhouse",
			"url": "https://boards-api.greenhouse.io/v1/boards/acme/jobs",
			"enabled": true,
			"profile": "fullstack_dev",
			"min_delay": "3s",
			"max_delay": "8s",
			"backoff_multiplier": 2.0
		}
	]
}`

func TestLoad_ValidConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.HTTPPort)
	assert.Equal(t, 30*time.Minute, cfg.ReviewWindow.Std())
	assert.Equal(t, 5, cfg.CircuitBreakerThreshold)

	require.Len(t, cfg.Sources, 1)
	src := cfg.Sources[0]
	assert.Equal(t, "acme-greenhouse", src.Name)
	assert.Equal(t, 3*time.Second, src.MinDelay.Std())
	assert.Equal(t, 8*time.Second, src.MaxDelay.Std())

	// Defaults fill unset sections.
	assert.Equal(t, 15876.0, cfg.Filter.SalaryFloorAnnual)
	assert.Equal(t, 7.0, cfg.Generation.QualityMinimum)
	assert.Equal(t, 2, cfg.MaxPerCompany)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	assert.Error(t, err)
}

func TestLoad_RejectsUnknownSourceKind(t *testing.T) {
	cfg := `{
		"sources": [{
			"name": "x", "kind": "linkedin", "url": "https://example.com",
			"profile": "p", "min_delay": "1s", "max_delay": "2s"
		}]
	}`
	_, err := Load(writeConfig(t, cfg))
	assert.Error(t, err)
}

func TestLoad_RejectsInvertedDelayBounds(t *testing.T) {
	cfg := `{
		"sources": [{
			"name": "x", "kind": "lever", "url": "https://example.com",
			"profile": "p", "min_delay": "10s", "max_delay": "2s"
		}]
	}`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_delay")
}

func TestLoad_RejectsWarningLongerThanWindow(t *testing.T) {
	cfg := `{
		"review_window": "10m",
		"review_warning": "15m",
		"sources": [{
			"name": "x", "kind": "lever", "url": "https://example.com",
			"profile": "p", "min_delay": "1s", "max_delay": "2s"
		}]
	}`
	_, err := Load(writeConfig(t, cfg))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "review_warning")
}

func TestLoad_RejectsEmptySources(t *testing.T) {
	_, err := Load(writeConfig(t, `{"sources": []}`))
	assert.Error(t, err)
}

func TestDuration_UnmarshalForms(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalJSON([]byte(`"90s"`)))
	assert.Equal(t, 90*time.Second, d.Std())

	require.NoError(t, d.UnmarshalJSON([]byte(`1000000000`)))
	assert.Equal(t, time.Second, d.Std())

	assert.Error(t, d.UnmarshalJSON([]byte(`"not a duration"`)))
	assert.Error(t, d.UnmarshalJSON([]byte(`true`)))
}
