package schema

// DataFrame is a keyed table: named columns over an optional row index.
type DataFrame struct {
	Columns []string `json:"columns"`
	Index   []string `json:"index,omitempty"`
	Rows    [][]any  `json:"rows"`
}

// Series is an ordered, optionally labelled, one-dimensional table.
type Series struct {
	Name   string   `json:"name,omitempty"`
	Index  []string `json:"index,omitempty"`
	Values []any    `json:"values"`
}

// Figure is a plotted chart rendered by the script runtime.
type Figure struct {
	Format string `json:"format"` // png | svg
	Data   []byte `json:"data"`
}

// Image is a raster or vector image produced by a script.
type Image struct {
	MIME string `json:"mime"`
	Data []byte `json:"data,omitempty"`
	Path string `json:"path,omitempty"`
}

// ErrorValue marks a script evaluation failure captured as the cell value.
type ErrorValue struct {
	Message string `json:"message"`
	Trace   string `json:"trace,omitempty"`
}

func (e ErrorValue) Error() string { return e.Message }

// ModuleStateItem is the latest computed value of a cell. It is created fresh
// on every recomputation and is never persisted.
type ModuleStateItem struct {
	Cell       CellRef
	Value      any
	DocumentID string
}
