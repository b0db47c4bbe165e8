package schema

// RuleNameKind is the semantic classification of a computed cell value.
// The string form is what gets persisted in cell metadata.
type RuleNameKind string

const (
	RuleKindUnknown   RuleNameKind = "unknown"
	RuleKindEmpty     RuleNameKind = "cell_data_type_empty"
	RuleKindError     RuleNameKind = "cell_data_type_error"
	RuleKindInt       RuleNameKind = "cell_data_type_int"
	RuleKindFloat     RuleNameKind = "cell_data_type_float"
	RuleKindStr       RuleNameKind = "cell_data_type_str"
	RuleKindTblData   RuleNameKind = "cell_data_type_tbl_data"
	RuleKindDataFrame RuleNameKind = "cell_data_type_data_frame"
	RuleKindSeries    RuleNameKind = "cell_data_type_series"
	RuleKindImage     RuleNameKind = "cell_data_type_image"
	RuleKindFigure    RuleNameKind = "cell_data_type_figure"
	RuleKindNone      RuleNameKind = "cell_data_type_none"
)

// RuleNameKinds lists every known rule kind, unknown last.
var RuleNameKinds = []RuleNameKind{
	RuleKindEmpty, RuleKindError, RuleKindInt, RuleKindFloat, RuleKindStr, RuleKindTblData,
	RuleKindDataFrame, RuleKindSeries, RuleKindImage, RuleKindFigure, RuleKindNone, RuleKindUnknown,
}

func (k RuleNameKind) String() string { return string(k) }

// ParseRuleNameKind returns the kind for a persisted identifier, or RuleKindUnknown.
func ParseRuleNameKind(s string) RuleNameKind {
	for _, k := range RuleNameKinds {
		if string(k) == s {
			return k
		}
	}
	return RuleKindUnknown
}

// CtlKind is the visual category of the overlay widget drawn for a cell.
type CtlKind int

const (
	CtlUnknown CtlKind = iota
	CtlSimple
	CtlEmpty
	CtlError
	CtlInteger
	CtlFloat
	CtlString
	CtlTblData
	CtlDataFrame
	CtlSeries
	CtlImage
	CtlFigure
	CtlNone
)

var ctlKindKeys = map[CtlKind]string{
	CtlUnknown:   "unknown",
	CtlSimple:    "simple_ctl",
	CtlEmpty:     "empty",
	CtlError:     "error",
	CtlInteger:   "integer",
	CtlFloat:     "float",
	CtlString:    "string",
	CtlTblData:   "tbl_data",
	CtlDataFrame: "data_frame",
	CtlSeries:    "series",
	CtlImage:     "image",
	CtlFigure:    "figure",
	CtlNone:      "none",
}

// ID returns the small integer id of the kind.
func (k CtlKind) ID() int { return int(k) }

// Key returns the persistence key of the kind.
func (k CtlKind) Key() string {
	if s, ok := ctlKindKeys[k]; ok {
		return s
	}
	return ctlKindKeys[CtlUnknown]
}

func (k CtlKind) String() string { return k.Key() }

// ParseCtlKind returns the kind for a persistence key, or CtlUnknown.
func ParseCtlKind(key string) CtlKind {
	for k, s := range ctlKindKeys {
		if s == key {
			return k
		}
	}
	return CtlUnknown
}

// ruleToCtl is the static table behind both mapping directions.
var ruleToCtl = map[RuleNameKind]CtlKind{
	RuleKindEmpty:     CtlEmpty,
	RuleKindError:     CtlError,
	RuleKindInt:       CtlInteger,
	RuleKindFloat:     CtlFloat,
	RuleKindStr:       CtlString,
	RuleKindTblData:   CtlTblData,
	RuleKindDataFrame: CtlDataFrame,
	RuleKindSeries:    CtlSeries,
	RuleKindImage:     CtlImage,
	RuleKindFigure:    CtlFigure,
	RuleKindNone:      CtlNone,
}

var ctlToRule = func() map[CtlKind]RuleNameKind {
	m := make(map[CtlKind]RuleNameKind, len(ruleToCtl))
	for r, c := range ruleToCtl {
		m[c] = r
	}
	return m
}()

// CtlKindFromRule maps a semantic classification to its control kind.
// Unmapped input yields CtlUnknown.
func CtlKindFromRule(rk RuleNameKind) CtlKind {
	if k, ok := ruleToCtl[rk]; ok {
		return k
	}
	return CtlUnknown
}

// RuleFromCtlKind maps a control kind back to its semantic classification.
// CtlSimple and CtlUnknown yield RuleKindUnknown.
func RuleFromCtlKind(ck CtlKind) RuleNameKind {
	if r, ok := ctlToRule[ck]; ok {
		return r
	}
	return RuleKindUnknown
}
