package config

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/invopop/jsonschema"
)

//go:embed schema.json
var embeddedSchema string

// schemaNode is the subset of JSON schema used for verification
type schemaNode struct {
	Ref        string                 `json:"$ref"`
	Type       string                 `json:"type"`
	Properties map[string]*schemaNode `json:"properties"`
	Defs       map[string]*schemaNode `json:"$defs"`
	Enum       []any                  `json:"enum"`
	Minimum    *float64               `json:"minimum"`
	Maximum    *float64               `json:"maximum"`
}

// VerifyAgainstEmbeddedSchema validates the config against the embedded JSON schema
func VerifyAgainstEmbeddedSchema(cfg *Config) error {
	var schema schemaNode
	if err := json.Unmarshal([]byte(embeddedSchema), &schema); err != nil {
		return fmt.Errorf("parse embedded schema: %w", err)
	}

	// convert config to JSON for validation
	configData, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	var configMap map[string]any
	if err := json.Unmarshal(configData, &configMap); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}

	if err := verifyNode(&schema, schema.Defs, "", configMap); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := validateRequiredFields(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// verifyNode checks value against node, following $ref into defs
func verifyNode(node *schemaNode, defs map[string]*schemaNode, path string, value any) error {
	if node.Ref != "" {
		def, ok := defs[strings.TrimPrefix(node.Ref, "#/$defs/")]
		if !ok {
			return fmt.Errorf("%s: unresolved schema ref %s", path, node.Ref)
		}
		node = def
	}

	switch v := value.(type) {
	case map[string]any:
		for key, val := range v {
			prop, ok := node.Properties[key]
			if !ok {
				return fmt.Errorf("%s: not in schema", join(path, key))
			}
			if err := verifyNode(prop, defs, join(path, key), val); err != nil {
				return err
			}
		}
	case float64:
		if node.Minimum != nil && v < *node.Minimum {
			return fmt.Errorf("%s: %v is below minimum %v", path, v, *node.Minimum)
		}
		if node.Maximum != nil && v > *node.Maximum {
			return fmt.Errorf("%s: %v is above maximum %v", path, v, *node.Maximum)
		}
	case string:
		if len(node.Enum) == 0 {
			return nil
		}
		for _, e := range node.Enum {
			if e == v {
				return nil
			}
		}
		return fmt.Errorf("%s: %q is not one of %v", path, v, node.Enum)
	}
	return nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// validateRequiredFields performs basic validation of required fields
func validateRequiredFields(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required")
	}
	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}
	if cfg.LLM.Endpoint == "" {
		return fmt.Errorf("llm.endpoint is required")
	}
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.Transcription.Backend == "local" && cfg.Transcription.WhisperModel == "" {
		return fmt.Errorf("transcription.whisper_model is required for the local backend")
	}
	return nil
}

// GenerateSchema generates a JSON schema for the Config struct
func GenerateSchema() (*jsonschema.Schema, error) {
	return jsonschema.Reflect(&Config{}), nil
}
