package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// CellRef identifies a single cell in a document: a sheet name plus
// zero-based column and row indexes.
type CellRef struct {
	Sheet string `json:"sheet"`
	Col   int    `json:"col"`
	Row   int    `json:"row"`
}

// ColumnName converts a zero-based column index into spreadsheet letters (0 -> A, 26 -> AA).
func ColumnName(col int) string {
	if col < 0 {
		return ""
	}
	var b []byte
	for n := col + 1; n > 0; n = (n - 1) / 26 {
		b = append([]byte{byte('A' + (n-1)%26)}, b...)
	}
	return string(b)
}

// ColumnIndex is the inverse of ColumnName. It returns -1 for invalid input.
func ColumnIndex(name string) int {
	if name == "" {
		return -1
	}
	n := 0
	for _, r := range strings.ToUpper(name) {
		if r < 'A' || r > 'Z' {
			return -1
		}
		n = n*26 + int(r-'A'+1)
	}
	return n - 1
}

// A1 returns the address of the cell without the sheet, e.g. "B3".
func (c CellRef) A1() string {
	return ColumnName(c.Col) + strconv.Itoa(c.Row+1)
}

// String returns the fully qualified address, e.g. "Sheet1!B3".
func (c CellRef) String() string {
	if c.Sheet == "" {
		return c.A1()
	}
	return c.Sheet + "!" + c.A1()
}

// ParseCellRef parses "Sheet1!B3" or "B3" (with defaultSheet).
func ParseCellRef(addr, defaultSheet string) (CellRef, error) {
	sheet := defaultSheet
	ref := strings.TrimSpace(addr)
	if i := strings.LastIndex(ref, "!"); i >= 0 {
		sheet = ref[:i]
		ref = ref[i+1:]
	}
	ref = strings.ReplaceAll(ref, "$", "")

	split := strings.IndexFunc(ref, func(r rune) bool { return r >= '0' && r <= '9' })
	if split <= 0 {
		return CellRef{}, NewErrorf(ErrCodeValidation, "invalid cell address %q", addr)
	}
	col := ColumnIndex(ref[:split])
	row, err := strconv.Atoi(ref[split:])
	if col < 0 || err != nil || row < 1 {
		return CellRef{}, NewErrorf(ErrCodeValidation, "invalid cell address %q", addr)
	}
	if sheet == "" {
		return CellRef{}, NewErrorf(ErrCodeValidation, "cell address %q has no sheet", addr)
	}
	return CellRef{Sheet: sheet, Col: col, Row: row - 1}, nil
}

// Rect is a position and size on a sheet's drawing layer, in host units.
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}
