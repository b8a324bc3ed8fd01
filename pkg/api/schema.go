package api

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

// schemaBaseURL абсолютный URL, под которым схемы регистрируются в компиляторе
const schemaBaseURL = "https://meetsync.invalid/"

// Имена встроенных схем
const (
	SchemaClientMessage = "schema/client_message.json"
	SchemaServerMessage = "schema/server_message.json"
)

// Validator проверяет сообщения протокола по JSON схеме
type Validator struct {
	schema *jsonschema.Schema
}

// NewValidator компилирует встроенную схему с указанным именем
func NewValidator(name string) (*Validator, error) {
	data, err := schemaFS.ReadFile(name)
	if err != nil {
		return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
	}

	url := schemaBaseURL + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("failed to add schema resource: %w", err)
	}

	schema, err := compiler.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	return &Validator{schema: schema}, nil
}

// MustValidator как NewValidator, но паникует при ошибке. Схемы встроены в бинарник.
func MustValidator(name string) *Validator {
	v, err := NewValidator(name)
	if err != nil {
		panic(err)
	}
	return v
}

// Validate проверяет raw JSON сообщение
func (v *Validator) Validate(raw []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(raw))
	decoder.UseNumber()

	var instance any
	if err := decoder.Decode(&instance); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}

	if err := v.schema.Validate(instance); err != nil {
		return fmt.Errorf("message does not match schema: %w", err)
	}
	return nil
}
