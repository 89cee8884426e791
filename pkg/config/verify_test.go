package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVerifyAgainstEmbeddedSchema(t *testing.T) {
	tests := []struct {
		name   string
		modify func(c *Config)
		errMsg string
	}{
		{name: "defaults", modify: func(*Config) {}},
		{name: "custom values", modify: func(c *Config) {
			c.Transcription.Backend = "api"
			c.LLM.Model = "gpt-4o-mini"
			c.Download.MaxSize = 1 << 30
		}},
		{name: "bad enum", modify: func(c *Config) { c.Transcription.Backend = "cloud" }, errMsg: "transcription.backend"},
		{name: "below minimum", modify: func(c *Config) { c.LLM.Concurrency = 0 }, errMsg: "llm.concurrency"},
		{name: "above maximum", modify: func(c *Config) { c.Transcription.CPUPercent = 101 }, errMsg: "above maximum"},
		{name: "missing listen", modify: func(c *Config) { c.Server.Listen = "" }, errMsg: "server.listen is required"},
		{name: "missing model", modify: func(c *Config) { c.LLM.Model = "" }, errMsg: "llm.model is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := VerifyAgainstEmbeddedSchema(cfg)
			if tt.errMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestVerifyNode_UnknownKey(t *testing.T) {
	var schema schemaNode
	require.NoError(t, json.Unmarshal([]byte(embeddedSchema), &schema))
	err := verifyNode(&schema, schema.Defs, "", map[string]any{"llm": map[string]any{"unknown": 1.0}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "llm.unknown: not in schema")
}

func TestEmbeddedSchemaMatchesConfig(t *testing.T) {
	// every field of the config must be described by the embedded schema
	var schema schemaNode
	require.NoError(t, json.Unmarshal([]byte(embeddedSchema), &schema))

	generated, err := GenerateSchema()
	require.NoError(t, err)
	data, err := json.Marshal(generated)
	require.NoError(t, err)
	var fresh schemaNode
	require.NoError(t, json.Unmarshal(data, &fresh))

	for name, def := range fresh.Defs {
		embedded, ok := schema.Defs[name]
		require.True(t, ok, "definition %s missing, run go generate ./pkg/config", name)
		for prop := range def.Properties {
			assert.Contains(t, embedded.Properties, prop, "%s.%s missing, run go generate ./pkg/config", name, prop)
		}
	}
}
