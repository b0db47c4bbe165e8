package cmdq

import (
	"context"
	"testing"

	"github.com/rendis/cellview/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentContext_CloseRunsHooksOnce(t *testing.T) {
	d := NewDocumentContext("book")
	calls := 0
	d.OnClose(func(context.Context) { calls++ })

	d.Close(context.Background())
	d.Close(context.Background())

	assert.Equal(t, 1, calls)
	assert.True(t, d.Closed())
}

func TestDocumentContext_CloseDropsState(t *testing.T) {
	d := NewDocumentContext("book")
	d.store("k", 1)
	Singleton(d, "s", func() int { return 7 })

	d.Close(context.Background())

	assert.Equal(t, 0, d.CacheLen())
	d.store("k", 2)
	assert.Equal(t, 0, d.CacheLen())
}

func TestSingleton_PerDocument(t *testing.T) {
	d1 := NewDocumentContext("a")
	d2 := NewDocumentContext("b")
	builds := 0
	build := func() *int { builds++; v := builds; return &v }

	s1 := Singleton(d1, "counter", build)
	assert.Same(t, s1, Singleton(d1, "counter", build))
	assert.NotSame(t, s1, Singleton(d2, "counter", build))
	assert.Equal(t, 2, builds)
}

func TestDocumentContext_RuntimeIDsAreUnique(t *testing.T) {
	d1 := NewDocumentContext("same")
	d2 := NewDocumentContext("same")
	assert.NotEqual(t, d1.ID(), d2.ID())
	assert.Equal(t, d1.Key(), d2.Key())
}

func TestDocuments_OpenGetClose(t *testing.T) {
	r := NewDocuments(nil)
	ctx := context.Background()

	d := r.Open("file:///a.ods")
	assert.Same(t, d, r.Open("file:///a.ods"))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(d.ID())
	require.True(t, ok)
	assert.Same(t, d, got)

	require.NoError(t, r.Close(ctx, d.ID()))
	assert.True(t, d.Closed())
	_, ok = r.Lookup("file:///a.ods")
	assert.False(t, ok)

	err := r.Close(ctx, d.ID())
	assert.True(t, schema.HasCode(err, schema.ErrCodeNotFound))

	reopened := r.Open("file:///a.ods")
	assert.NotEqual(t, d.ID(), reopened.ID())
}

func TestDocuments_CloseAll(t *testing.T) {
	r := NewDocuments(nil)
	a := r.Open("a")
	b := r.Open("b")

	r.CloseAll(context.Background())
	assert.Equal(t, 0, r.Len())
	assert.True(t, a.Closed())
	assert.True(t, b.Closed())
}

func TestCaptured(t *testing.T) {
	var c Captured[string]
	_, ok := c.Get()
	assert.False(t, ok)

	require.NoError(t, c.Capture(func() (string, error) { return "first", nil }))
	require.NoError(t, c.Capture(func() (string, error) { return "second", nil }))
	v, ok := c.Get()
	assert.True(t, ok)
	assert.Equal(t, "first", v)

	c.Reset()
	_, ok = c.Get()
	assert.False(t, ok)
}

func TestSingleton_BuildMayRegisterCloseHooks(t *testing.T) {
	d := NewDocumentContext("a")
	closed := false
	v := Singleton(d, "facade", func() string {
		d.OnClose(func(context.Context) { closed = true })
		return "built"
	})
	assert.Equal(t, "built", v)

	d.Close(context.Background())
	assert.True(t, closed)
}
