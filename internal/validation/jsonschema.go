package validation

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rendis/cellview/pkg/schema"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v6"
)

const (
	metadataSchemaURL   = "https://cellview.dev/schemas/metadata.json"
	ruleConfigSchemaURL = "https://cellview.dev/schemas/custom-rules.json"
)

// JSONSchemaValidator implements Validator. Both schemas are compiled once
// from the enums in pkg/schema. It is safe for concurrent use.
type JSONSchemaValidator struct {
	metadataSchema   *jsonschema.Schema
	ruleConfigSchema *jsonschema.Schema
}

// NewJSONSchemaValidator compiles the metadata and rule configuration schemas.
func NewJSONSchemaValidator() (*JSONSchemaValidator, error) {
	c := jsonschema.NewCompiler()
	c.AssertFormat()

	if err := addResource(c, metadataSchemaURL, metadataSchemaDoc()); err != nil {
		return nil, err
	}
	if err := addResource(c, ruleConfigSchemaURL, ruleConfigSchemaDoc()); err != nil {
		return nil, err
	}

	meta, err := c.Compile(metadataSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile metadata schema: %w", err)
	}
	rules, err := c.Compile(ruleConfigSchemaURL)
	if err != nil {
		return nil, fmt.Errorf("compile rule config schema: %w", err)
	}
	return &JSONSchemaValidator{metadataSchema: meta, ruleConfigSchema: rules}, nil
}

// ValidateMetadata checks a snapshot of a cell's control metadata. The
// snapshot must only contain keys from schema.MetadataKeys.
func (v *JSONSchemaValidator) ValidateMetadata(meta map[string]string) error {
	if meta == nil {
		return schema.NewError(schema.ErrCodeValidation, "metadata is nil")
	}
	doc := make(map[string]any, len(meta))
	for k, val := range meta {
		doc[k] = val
	}
	if err := v.metadataSchema.Validate(doc); err != nil {
		return toCellviewError(err)
	}
	return nil
}

// ValidateRuleConfig checks a list of custom rule definitions. cfg may be
// decoded JSON or any value that marshals to a JSON array.
func (v *JSONSchemaValidator) ValidateRuleConfig(cfg any) error {
	doc, err := toJSONValue(cfg)
	if err != nil {
		return schema.NewError(schema.ErrCodeValidation, "failed to serialize rule config").WithCause(err)
	}
	if err := v.ruleConfigSchema.Validate(doc); err != nil {
		return toCellviewError(err)
	}

	seen := make(map[string]struct{})
	items, _ := doc.([]any)
	for _, item := range items {
		m, _ := item.(map[string]any)
		name, _ := m["name"].(string)
		if _, exists := seen[name]; exists {
			return schema.NewErrorf(schema.ErrCodeValidation, "duplicate custom rule name %q", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

func metadataSchemaDoc() map[string]any {
	kinds := persistedRuleKinds()
	triggers := make([]string, 0, len(schema.ModifyTriggers))
	for _, t := range schema.ModifyTriggers {
		triggers = append(triggers, string(t))
	}
	return map[string]any{
		"$schema":  "https://json-schema.org/draft/2020-12/schema",
		"$id":      metadataSchemaURL,
		"type":     "object",
		"required": []string{schema.MetaRuleKind, schema.MetaShapeName},
		"properties": map[string]any{
			schema.MetaRuleKind:      map[string]any{"type": "string", "enum": kinds},
			schema.MetaOrigRuleKind:  map[string]any{"type": "string", "enum": kinds},
			schema.MetaShapeName:     map[string]any{"type": "string", "pattern": `^SHAPE_\S+$`},
			schema.MetaArrayAbility:  map[string]any{"type": "string", "enum": []string{"true", "false"}},
			schema.MetaModifyTrigger: map[string]any{"type": "string", "enum": triggers},
			schema.MetaCodeName:      map[string]any{"type": "string", "minLength": 1},
		},
		"additionalProperties": false,
	}
}

func ruleConfigSchemaDoc() map[string]any {
	return map[string]any{
		"$schema": "https://json-schema.org/draft/2020-12/schema",
		"$id":     ruleConfigSchemaURL,
		"type":    "array",
		"items": map[string]any{
			"type":     "object",
			"required": []string{"name", "engine", "expression", "kind"},
			"properties": map[string]any{
				"name":       map[string]any{"type": "string", "pattern": `^[A-Za-z0-9_.-]+$`},
				"engine":     map[string]any{"type": "string", "enum": []string{"cel", "expr", "jq"}},
				"expression": map[string]any{"type": "string", "minLength": 1},
				"kind":       map[string]any{"type": "string", "enum": persistedRuleKinds()},
				"first":      map[string]any{"type": "boolean"},
			},
			"additionalProperties": false,
		},
	}
}

// persistedRuleKinds lists every rule kind that may be written to a cell.
func persistedRuleKinds() []string {
	out := make([]string, 0, len(schema.RuleNameKinds))
	for _, k := range schema.RuleNameKinds {
		if k == schema.RuleKindUnknown {
			continue
		}
		out = append(out, string(k))
	}
	return out
}

func addResource(c *jsonschema.Compiler, url string, doc map[string]any) error {
	parsed, err := toJSONValue(doc)
	if err != nil {
		return fmt.Errorf("marshal schema %s: %w", url, err)
	}
	if err := c.AddResource(url, parsed); err != nil {
		return fmt.Errorf("add schema resource %s: %w", url, err)
	}
	return nil
}

// toJSONValue round-trips a Go value through JSON encoding/decoding so that
// numeric values become json.Number (required by the jsonschema library).
func toJSONValue(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(strings.NewReader(string(b)))
}

// toCellviewError converts a jsonschema.ValidationError into a CellviewError
// listing every violated instance location.
func toCellviewError(err error) *schema.CellviewError {
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return schema.NewError(schema.ErrCodeValidation, err.Error())
	}

	violations := collectViolations(verr)
	if len(violations) == 0 {
		return schema.NewError(schema.ErrCodeValidation, verr.Error())
	}

	if len(violations) == 1 {
		return schema.NewError(schema.ErrCodeValidation, violations[0]).
			WithDetails(map[string]any{"violations": violations})
	}

	msg := fmt.Sprintf("validation failed with %d errors", len(violations))
	return schema.NewError(schema.ErrCodeValidation, msg).
		WithDetails(map[string]any{"violations": violations})
}

// collectViolations walks a ValidationError tree and collects leaf error messages
// with their instance locations.
func collectViolations(verr *jsonschema.ValidationError) []string {
	if len(verr.Causes) == 0 {
		loc := "/"
		if len(verr.InstanceLocation) > 0 {
			loc = "/" + strings.Join(verr.InstanceLocation, "/")
		}
		return []string{fmt.Sprintf("%s: %s", loc, verr.Error())}
	}

	var violations []string
	for _, cause := range verr.Causes {
		violations = append(violations, collectViolations(cause)...)
	}
	return violations
}

var _ Validator = (*JSONSchemaValidator)(nil)
