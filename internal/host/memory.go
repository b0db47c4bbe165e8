package host

import (
	"context"
	"sort"
	"sync"

	"github.com/rendis/cellview/pkg/schema"
)

// Default cell geometry used by MemoryPage.
const (
	DefaultCellWidth  = 2258
	DefaultCellHeight = 452
)

// --- Module state ---

// MemoryModules holds computed values keyed by cell.
type MemoryModules struct {
	mu         sync.RWMutex
	documentID string
	values     map[schema.CellRef]any
}

// NewMemoryModules creates an empty provider for the given document.
func NewMemoryModules(documentID string) *MemoryModules {
	return &MemoryModules{documentID: documentID, values: make(map[schema.CellRef]any)}
}

// Put records the latest computed value of a cell.
func (m *MemoryModules) Put(cell schema.CellRef, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[cell] = value
}

// Forget drops a cell's module.
func (m *MemoryModules) Forget(cell schema.CellRef) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, cell)
}

func (m *MemoryModules) State(_ context.Context, cell schema.CellRef) (*schema.ModuleStateItem, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[cell]
	if !ok {
		return nil, schema.NewError(schema.ErrCodeNotFound, "no module state").WithCell(cell)
	}
	return &schema.ModuleStateItem{Cell: cell, Value: v, DocumentID: m.documentID}, nil
}

// --- Properties ---

// MemoryProperties is an in-memory PropertyStore.
type MemoryProperties struct {
	mu    sync.RWMutex
	cells map[schema.CellRef]map[string]string
}

// NewMemoryProperties creates an empty property store.
func NewMemoryProperties() *MemoryProperties {
	return &MemoryProperties{cells: make(map[schema.CellRef]map[string]string)}
}

func (p *MemoryProperties) Get(_ context.Context, cell schema.CellRef, key string) (string, bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.cells[cell][key]
	return v, ok, nil
}

func (p *MemoryProperties) Set(ctx context.Context, cell schema.CellRef, key, value string) error {
	return p.SetMany(ctx, cell, map[string]string{key: value})
}

func (p *MemoryProperties) Has(_ context.Context, cell schema.CellRef, key string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.cells[cell][key]
	return ok, nil
}

func (p *MemoryProperties) Delete(ctx context.Context, cell schema.CellRef, key string) error {
	return p.DeleteMany(ctx, cell, []string{key})
}

func (p *MemoryProperties) GetAll(_ context.Context, cell schema.CellRef) (map[string]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]string, len(p.cells[cell]))
	for k, v := range p.cells[cell] {
		out[k] = v
	}
	return out, nil
}

func (p *MemoryProperties) SetMany(_ context.Context, cell schema.CellRef, values map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	props, ok := p.cells[cell]
	if !ok {
		props = make(map[string]string, len(values))
		p.cells[cell] = props
	}
	for k, v := range values {
		props[k] = v
	}
	return nil
}

func (p *MemoryProperties) DeleteMany(_ context.Context, cell schema.CellRef, keys []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, k := range keys {
		delete(p.cells[cell], k)
	}
	if len(p.cells[cell]) == 0 {
		delete(p.cells, cell)
	}
	return nil
}

// --- Drawing layer ---

type memoryShape struct {
	spec ShapeSpec
}

func (s *memoryShape) Name() string    { return s.spec.Name }
func (s *memoryShape) Spec() ShapeSpec { return s.spec }

// MemoryPage is an in-memory DrawPage with a uniform cell grid.
type MemoryPage struct {
	mu     sync.RWMutex
	sheet  string
	shapes map[string]*memoryShape
}

// NewMemoryPage creates an empty drawing page for sheet.
func NewMemoryPage(sheet string) *MemoryPage {
	return &MemoryPage{sheet: sheet, shapes: make(map[string]*memoryShape)}
}

func (p *MemoryPage) CellBounds(_ context.Context, cell schema.CellRef) (schema.Rect, error) {
	if cell.Col < 0 || cell.Row < 0 {
		return schema.Rect{}, schema.NewError(schema.ErrCodeValidation, "negative cell index").WithCell(cell)
	}
	return schema.Rect{
		X:      cell.Col * DefaultCellWidth,
		Y:      cell.Row * DefaultCellHeight,
		Width:  DefaultCellWidth,
		Height: DefaultCellHeight,
	}, nil
}

func (p *MemoryPage) CreateShape(_ context.Context, spec ShapeSpec) (Shape, error) {
	if spec.Name == "" {
		return nil, schema.NewError(schema.ErrCodeValidation, "shape name is empty")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.shapes[spec.Name]; exists {
		return nil, schema.NewErrorf(schema.ErrCodeConflict, "shape %q already exists on %s", spec.Name, p.sheet)
	}
	s := &memoryShape{spec: spec}
	p.shapes[spec.Name] = s
	return s, nil
}

func (p *MemoryPage) FindShape(_ context.Context, name string) (Shape, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.shapes[name]
	if !ok {
		return nil, schema.NewErrorf(schema.ErrCodeNotFound, "no such shape %q on %s", name, p.sheet)
	}
	return &memoryShape{spec: s.spec}, nil
}

func (p *MemoryPage) DisposeShape(_ context.Context, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.shapes[name]; !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no such shape %q on %s", name, p.sheet)
	}
	delete(p.shapes, name)
	return nil
}

func (p *MemoryPage) SetVisible(_ context.Context, name string, visible bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.shapes[name]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no such shape %q on %s", name, p.sheet)
	}
	s.spec.Visible = visible
	return nil
}

func (p *MemoryPage) SetSize(_ context.Context, name string, bounds schema.Rect) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.shapes[name]
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "no such shape %q on %s", name, p.sheet)
	}
	s.spec.Bounds = bounds
	return nil
}

// Names returns the shape names on the page, sorted.
func (p *MemoryPage) Names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	names := make([]string, 0, len(p.shapes))
	for n := range p.shapes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MemoryDraw is a DrawHost that lazily creates one MemoryPage per sheet.
type MemoryDraw struct {
	mu    sync.Mutex
	pages map[string]*MemoryPage
}

// NewMemoryDraw creates an empty drawing host.
func NewMemoryDraw() *MemoryDraw {
	return &MemoryDraw{pages: make(map[string]*MemoryPage)}
}

func (d *MemoryDraw) DrawPage(_ context.Context, sheet string) (DrawPage, error) {
	return d.Page(sheet), nil
}

// Page returns the concrete page for sheet, creating it on first use.
func (d *MemoryDraw) Page(sheet string) *MemoryPage {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pages[sheet]
	if !ok {
		p = NewMemoryPage(sheet)
		d.pages[sheet] = p
	}
	return p
}

// --- Formulas ---

// MemoryFormulas is a FormulaWriter that notifies a callback on every write,
// standing in for the host's modification listeners.
type MemoryFormulas struct {
	mu       sync.Mutex
	formulas map[schema.CellRef]string
	onWrite  func(ctx context.Context, cell schema.CellRef)
}

// NewMemoryFormulas creates a formula store. onWrite may be nil.
func NewMemoryFormulas(onWrite func(ctx context.Context, cell schema.CellRef)) *MemoryFormulas {
	return &MemoryFormulas{formulas: make(map[schema.CellRef]string), onWrite: onWrite}
}

func (f *MemoryFormulas) Formula(_ context.Context, cell schema.CellRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.formulas[cell], nil
}

func (f *MemoryFormulas) SetFormula(ctx context.Context, cell schema.CellRef, formula string) error {
	f.mu.Lock()
	f.formulas[cell] = formula
	cb := f.onWrite
	f.mu.Unlock()
	if cb != nil {
		cb(ctx, cell)
	}
	return nil
}

var (
	_ ModuleStateProvider = (*MemoryModules)(nil)
	_ PropertyStore       = (*MemoryProperties)(nil)
	_ DrawPage            = (*MemoryPage)(nil)
	_ DrawHost            = (*MemoryDraw)(nil)
	_ FormulaWriter       = (*MemoryFormulas)(nil)
)
