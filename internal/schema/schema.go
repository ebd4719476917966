// Пакет schema — валидация сообщений очереди exportRequests по JSON-схеме.
// Схема (draft-07) вшита в бинарь; сообщение, не прошедшее валидацию,
// считается malformed и отбрасывается без повторной доставки.
package schema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed export-request.json
var exportRequestSchema string

// ExportRequestValidator — скомпилированная схема запроса экспорта.
type ExportRequestValidator struct {
	schema *jsonschema.Schema
}

// NewExportRequestValidator компилирует вшитую схему.
func NewExportRequestValidator() (*ExportRequestValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft7

	if err := compiler.AddResource("export-request.json", bytes.NewReader([]byte(exportRequestSchema))); err != nil {
		return nil, fmt.Errorf("загрузка схемы export-request: %w", err)
	}

	sch, err := compiler.Compile("export-request.json")
	if err != nil {
		return nil, fmt.Errorf("компиляция схемы export-request: %w", err)
	}
	return &ExportRequestValidator{schema: sch}, nil
}

// Validate проверяет сырое сообщение очереди по схеме.
func (v *ExportRequestValidator) Validate(body []byte) error {
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return fmt.Errorf("сообщение не является JSON: %w", err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return fmt.Errorf("сообщение не соответствует схеме: %w", err)
	}
	return nil
}
