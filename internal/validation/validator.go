package validation

// Validator checks persisted control metadata and custom rule configuration
// against JSON Schema Draft 2020-12.
type Validator interface {
	ValidateMetadata(meta map[string]string) error
	ValidateRuleConfig(cfg any) error
}
