package expressions

import (
	"encoding/base64"
	"reflect"

	"github.com/rendis/cellview/pkg/schema"
)

// Scope builds the data map handed to an Engine when a custom rule is
// evaluated. Values are converted to JSON-like data (maps, []any, string,
// float64, int64, bool, nil) so every engine sees the same shapes.
func Scope(cell schema.CellRef, value any) map[string]any {
	return map[string]any{
		"value": ToData(value),
		"shape": TypeName(value),
		"cell": map[string]any{
			"sheet":   cell.Sheet,
			"address": cell.String(),
			"col":     int64(cell.Col),
			"row":     int64(cell.Row),
		},
	}
}

// TypeName returns a coarse, engine-neutral shape name for v.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case string:
		return "string"
	case bool:
		return "bool"
	case schema.DataFrame, *schema.DataFrame:
		return "data_frame"
	case schema.Series, *schema.Series:
		return "series"
	case schema.Figure, *schema.Figure:
		return "figure"
	case schema.Image, *schema.Image:
		return "image"
	case schema.ErrorValue, *schema.ErrorValue, error:
		return "error"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "int"
	case reflect.Float32, reflect.Float64:
		return "float"
	case reflect.Slice, reflect.Array:
		return "list"
	case reflect.Map:
		return "map"
	default:
		return "object"
	}
}

// ToData converts a cell value into JSON-like data.
func ToData(v any) any {
	switch val := v.(type) {
	case nil, string, bool, int64, float64:
		return val
	case schema.DataFrame:
		return map[string]any{
			"columns": stringsToData(val.Columns),
			"index":   stringsToData(val.Index),
			"rows":    ToData(val.Rows),
		}
	case *schema.DataFrame:
		return ToData(*val)
	case schema.Series:
		return map[string]any{
			"name":   val.Name,
			"index":  stringsToData(val.Index),
			"values": ToData(val.Values),
		}
	case *schema.Series:
		return ToData(*val)
	case schema.Figure:
		return map[string]any{"format": val.Format, "size": int64(len(val.Data))}
	case *schema.Figure:
		return ToData(*val)
	case schema.Image:
		return map[string]any{"mime": val.MIME, "path": val.Path, "size": int64(len(val.Data))}
	case *schema.Image:
		return ToData(*val)
	case []byte:
		return base64.StdEncoding.EncodeToString(val)
	case error:
		return map[string]any{"message": val.Error()}
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.String:
		return rv.String()
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = ToData(rv.Index(i).Interface())
		}
		return out
	case reflect.Map:
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			if k, ok := iter.Key().Interface().(string); ok {
				out[k] = ToData(iter.Value().Interface())
			}
		}
		return out
	default:
		return nil
	}
}

func stringsToData(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
