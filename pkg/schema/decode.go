package schema

import (
	"encoding/json"
	"fmt"
	"math"
)

// ValueShapes are the shapes accepted by DecodeValue.
var ValueShapes = []string{
	"json", "int", "float", "string", "table", "data_frame", "series", "figure", "image", "error", "none",
}

// decodeInt keeps every digit of integer literals. Integral floats such as
// 3.0 or 1e3 are accepted when they fit in int64.
func decodeInt(raw string) (int64, error) {
	var n json.Number
	if err := json.Unmarshal([]byte(raw), &n); err != nil {
		return 0, err
	}
	if i, err := n.Int64(); err == nil {
		return i, nil
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, fmt.Errorf("%s is not an int64 integer", raw)
	}
	return int64(f), nil
}

// DecodeValue turns JSON text into a computed value of the given shape (one
// of ValueShapes). "json" keeps the generic decoding, where numbers are float64.
func DecodeValue(shape, raw string) (any, error) {
	var target any
	switch shape {
	case "", "json":
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, err
		}
		return v, nil
	case "none":
		return nil, nil
	case "int":
		return decodeInt(raw)
	case "float":
		target = new(float64)
	case "string":
		target = new(string)
	case "table":
		target = new([][]any)
	case "data_frame":
		target = new(DataFrame)
	case "series":
		target = new(Series)
	case "figure":
		target = new(Figure)
	case "image":
		target = new(Image)
	case "error":
		target = new(ErrorValue)
	default:
		return nil, fmt.Errorf("unknown shape %q", shape)
	}
	if err := json.Unmarshal([]byte(raw), target); err != nil {
		return nil, err
	}
	switch t := target.(type) {
	case *float64:
		return *t, nil
	case *string:
		return *t, nil
	case *[][]any:
		return *t, nil
	case *DataFrame:
		return *t, nil
	case *Series:
		return t, nil
	case *Figure:
		return *t, nil
	case *Image:
		return *t, nil
	case *ErrorValue:
		return *t, nil
	}
	return nil, fmt.Errorf("unknown shape %q", shape)
}
