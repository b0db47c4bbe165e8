package schema

// Persisted per-cell metadata keys. Values are strings; flags are "true"/"false".
const (
	MetaRuleKind      = "cellview.rule_kind"
	MetaOrigRuleKind  = "cellview.orig_rule_kind"
	MetaShapeName     = "cellview.shape_name"
	MetaArrayAbility  = "cellview.array_ability"
	MetaModifyTrigger = "cellview.modify_trigger"
	MetaCodeName      = "cellview.code_name"
)

// MetadataKeys lists every key owned by a cell control.
var MetadataKeys = []string{
	MetaRuleKind,
	MetaOrigRuleKind,
	MetaShapeName,
	MetaArrayAbility,
	MetaModifyTrigger,
	MetaCodeName,
}

// ControlKeys are the keys cleared when a control is deleted. The code name
// survives so the cell keeps its identity across delete and recreate.
var ControlKeys = []string{
	MetaRuleKind,
	MetaOrigRuleKind,
	MetaShapeName,
	MetaArrayAbility,
	MetaModifyTrigger,
}

// ModifyTrigger names what causes an existing control to be refreshed.
type ModifyTrigger string

const (
	ModifyTriggerCellData ModifyTrigger = "cell_data"
	ModifyTriggerNone     ModifyTrigger = "none"
)

// ModifyTriggers lists every persisted trigger value.
var ModifyTriggers = []ModifyTrigger{ModifyTriggerCellData, ModifyTriggerNone}
