package config

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// configSchemaJSON and lockSchemaJSON describe the shapes from spec §6.4.
// Kept loose (few required fields) since both files are meant to be
// hand-authored and partially filled in by project setup tooling.
const configSchemaJSON = `{
  "type": "object",
  "required": ["projectName"],
  "properties": {
    "projectName": {"type": "string", "minLength": 1},
    "security": {
      "type": "object",
      "properties": {
        "allowGuardBypass": {"type": "boolean"},
        "url": {
          "type": "object",
          "properties": {
            "allowedDomains": {"type": "array", "items": {"type": "string"}},
            "blockedDomains": {"type": "array", "items": {"type": "string"}}
          }
        }
      }
    },
    "policyImports": {"type": "array", "items": {"type": "string"}},
    "policyEnvironment": {"type": "object"},
    "modules": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "properties": {
          "resolver": {"type": "string"},
          "version": {"type": "string"}
        }
      }
    }
  }
}`

const lockSchemaJSON = `{
  "type": "object",
  "properties": {
    "security": {
      "type": "object",
      "properties": {
        "allowedEnv": {"type": "array", "items": {"type": "string"}}
      }
    },
    "modules": {
      "type": "object",
      "additionalProperties": {
        "type": "object",
        "required": ["version", "integrity"],
        "properties": {
          "version": {"type": "string"},
          "integrity": {"type": "string", "pattern": "^sha256-"}
        }
      }
    }
  }
}`

var (
	configSchema *jsonschema.Schema
	lockSchema   *jsonschema.Schema
)

func init() {
	var err error
	configSchema, err = compileSchema("schema://mlld-config.json", configSchemaJSON)
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded config schema: %v", err))
	}
	lockSchema, err = compileSchema("schema://mlld-lock.json", lockSchemaJSON)
	if err != nil {
		panic(fmt.Sprintf("config: invalid embedded lock schema: %v", err))
	}
}

// compileSchema compiles a literal JSON Schema document with remote $ref
// resolution disabled; these schemas are fixed at build time and never
// need to reach out to a URL.
func compileSchema(url, schemaJSON string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true

	if err := compiler.AddResource(url, strings.NewReader(schemaJSON)); err != nil {
		return nil, err
	}
	return compiler.Compile(url)
}

func validateConfig(data map[string]interface{}) error {
	if err := configSchema.Validate(toInterfaceMap(data)); err != nil {
		return convertValidationError(err)
	}
	return nil
}

func validateLockfile(data map[string]interface{}) error {
	if err := lockSchema.Validate(toInterfaceMap(data)); err != nil {
		return convertValidationError(err)
	}
	return nil
}

// toInterfaceMap re-decodes through encoding/json so that jsonschema sees
// plain JSON-shaped values (float64/[]interface{}/map[string]interface{})
// regardless of whether the caller's map came from YAML (which can
// produce map[interface{}]interface{} or int in older decoders).
func toInterfaceMap(data map[string]interface{}) interface{} {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return data
	}
	return out
}

func convertValidationError(err error) error {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		return ve
	}
	return err
}
