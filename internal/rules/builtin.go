package rules

import (
	"context"
	"math"
	"reflect"
	"strconv"
	"strings"
	"unicode"

	"github.com/rendis/cellview/pkg/schema"
)

// Built-in rule names.
const (
	NameEmpty      = "empty"
	NameTblHeaders = "tbl_data_headers"
	NameDataFrame  = "data_frame"
	NameSeries     = "series"
	NameFigure     = "figure"
	NameInt        = "int"
	NameFloat      = "float"
	NameStr        = "str"
	NameTblData    = "tbl_data"
	NameError      = "error"
	NameNone       = "none"
	NameImage      = "image"
)

// Builtins returns the built-in rules in precedence order, highest first.
func Builtins() []Rule {
	return []Rule{
		emptyRule{},
		tblHeadersRule{},
		dataFrameRule{},
		seriesRule{},
		figureRule{},
		intRule{},
		floatRule{},
		strRule{},
		tblDataRule{},
		errorRule{},
		noneRule{},
	}
}

// ImageRule matches schema.Image values. It is not part of Builtins and is
// registered after the built-in chain so it never changes their precedence.
func ImageRule() Rule { return imageRule{} }

// NoneRule is the default returned when nothing in a chain matches.
func NoneRule() Rule { return noneRule{} }

type emptyRule struct{}

func (emptyRule) Name() string              { return NameEmpty }
func (emptyRule) Kind() schema.RuleNameKind { return schema.RuleKindEmpty }

func (emptyRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	}
	return false
}

type tblHeadersRule struct{}

func (tblHeadersRule) Name() string              { return NameTblHeaders }
func (tblHeadersRule) Kind() schema.RuleNameKind { return schema.RuleKindTblData }

func (tblHeadersRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	rows, ok := table(v)
	if !ok || len(rows) < 2 || len(rows[0]) == 0 {
		return false
	}
	for _, h := range rows[0] {
		s, ok := h.(string)
		if !ok || strings.TrimSpace(s) == "" {
			return false
		}
	}
	return true
}

func (tblHeadersRule) Normalize(v any) any {
	rows, _ := table(v)
	return rows
}

type dataFrameRule struct{}

func (dataFrameRule) Name() string              { return NameDataFrame }
func (dataFrameRule) Kind() schema.RuleNameKind { return schema.RuleKindDataFrame }

func (dataFrameRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	switch df := v.(type) {
	case schema.DataFrame:
		return true
	case *schema.DataFrame:
		return df != nil
	}
	return false
}

type seriesRule struct{}

func (seriesRule) Name() string              { return NameSeries }
func (seriesRule) Kind() schema.RuleNameKind { return schema.RuleKindSeries }

func (seriesRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	switch s := v.(type) {
	case schema.Series:
		return true
	case *schema.Series:
		return s != nil
	}
	return false
}

type figureRule struct{}

func (figureRule) Name() string              { return NameFigure }
func (figureRule) Kind() schema.RuleNameKind { return schema.RuleKindFigure }

func (figureRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	switch f := v.(type) {
	case schema.Figure:
		return true
	case *schema.Figure:
		return f != nil
	}
	return false
}

// intRule matches integer kinds, bools, and strings without a '.' that parse
// as base-10 integers.
type intRule struct{}

func (intRule) Name() string              { return NameInt }
func (intRule) Kind() schema.RuleNameKind { return schema.RuleKindInt }

func (intRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	_, ok := asInt(v)
	return ok
}

func (intRule) Normalize(v any) any {
	n, _ := asInt(v)
	return n
}

func asInt(v any) (int64, bool) {
	switch val := v.(type) {
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	case string:
		if strings.Contains(val, ".") {
			return 0, false
		}
		n, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
		return n, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		// Values past int64 are left to the float rule.
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	}
	return 0, false
}

type floatRule struct{}

func (floatRule) Name() string              { return NameFloat }
func (floatRule) Kind() schema.RuleNameKind { return schema.RuleKindFloat }

func (floatRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	_, ok := asFloat(v)
	return ok
}

func (floatRule) Normalize(v any) any {
	f, _ := asFloat(v)
	return f
}

func asFloat(v any) (float64, bool) {
	if s, ok := v.(string); ok {
		s = strings.TrimSpace(s)
		if !strings.ContainsFunc(s, unicode.IsDigit) {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	case reflect.Uint, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	}
	return 0, false
}

type strRule struct{}

func (strRule) Name() string              { return NameStr }
func (strRule) Kind() schema.RuleNameKind { return schema.RuleKindStr }

func (strRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	s, ok := v.(string)
	return ok && s != ""
}

type tblDataRule struct{}

func (tblDataRule) Name() string              { return NameTblData }
func (tblDataRule) Kind() schema.RuleNameKind { return schema.RuleKindTblData }

func (tblDataRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	_, ok := table(v)
	return ok
}

func (tblDataRule) Normalize(v any) any {
	rows, _ := table(v)
	return rows
}

type errorRule struct{}

func (errorRule) Name() string              { return NameError }
func (errorRule) Kind() schema.RuleNameKind { return schema.RuleKindError }

func (errorRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	switch e := v.(type) {
	case schema.ErrorValue:
		return true
	case *schema.ErrorValue:
		return e != nil
	case error:
		return true
	}
	return false
}

type noneRule struct{}

func (noneRule) Name() string              { return NameNone }
func (noneRule) Kind() schema.RuleNameKind { return schema.RuleKindNone }

func (noneRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	return v == nil
}

type imageRule struct{}

func (imageRule) Name() string              { return NameImage }
func (imageRule) Kind() schema.RuleNameKind { return schema.RuleKindImage }

func (imageRule) Match(_ context.Context, _ schema.CellRef, v any) bool {
	switch img := v.(type) {
	case schema.Image:
		return true
	case *schema.Image:
		return img != nil
	}
	return false
}

// table reports whether v is a non-empty slice of slices and returns its rows.
// Byte slices and strings are not treated as rows.
func table(v any) ([][]any, bool) {
	if v == nil {
		return nil, false
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	if rv.Len() == 0 || rv.Type().Elem().Kind() == reflect.Uint8 {
		return nil, false
	}
	rows := make([][]any, rv.Len())
	for i := range rows {
		row := rv.Index(i)
		if row.Kind() == reflect.Interface {
			row = row.Elem()
		}
		if row.Kind() != reflect.Slice && row.Kind() != reflect.Array {
			return nil, false
		}
		if row.Type().Elem().Kind() == reflect.Uint8 {
			return nil, false
		}
		cells := make([]any, row.Len())
		for j := range cells {
			cells[j] = row.Index(j).Interface()
		}
		rows[i] = cells
	}
	return rows, true
}
