package internal

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_ProdWritesJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "prod", "info")

	logger.Info("event processed", "event_id", "evt_1")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "event processed", entry["msg"])
	assert.Equal(t, "evt_1", entry["event_id"])
	assert.Equal(t, "tally", entry["service"])
}

func TestNewLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "dev", "warn")

	logger.Info("hidden")
	logger.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewLogger_RedactsSecrets(t *testing.T) {
	for _, env := range []string{"dev", "prod"} {
		t.Run(env, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(&buf, env, "info")

			logger.Info("verifier configured",
				"webhook_secret", "whsec_live_abc",
				"Stripe-Signature", "t=1,v1=deadbeef",
				"secret_count", 2,
			)

			out := buf.String()
			assert.NotContains(t, out, "whsec_live_abc")
			assert.NotContains(t, out, "deadbeef")
			assert.Contains(t, out, "[REDACTED]")
			assert.Regexp(t, `secret_count"?[=:]2`, out)
		})
	}
}
