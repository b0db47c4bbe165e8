package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/rendis/cellview/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var b3 = schema.CellRef{Sheet: "Sheet1", Col: 1, Row: 2}

func newTestStore(t *testing.T) *LibSQLStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewLibSQLStore("file:" + filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { s.Close() })
	return s
}

func transition(t *testing.T, from, to string) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(TransitionPayload{From: from, To: to})
	require.NoError(t, err)
	return raw
}

func TestMigrate_Idempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(context.Background()))
}

func TestProperties_CRUD(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := s.Properties("doc-1")

	_, ok, err := p.Get(ctx, b3, schema.MetaRuleKind)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, p.Set(ctx, b3, schema.MetaRuleKind, string(schema.RuleKindStr)))
	require.NoError(t, p.Set(ctx, b3, schema.MetaRuleKind, string(schema.RuleKindInt)))

	v, ok, err := p.Get(ctx, b3, schema.MetaRuleKind)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, string(schema.RuleKindInt), v)

	has, err := p.Has(ctx, b3, schema.MetaRuleKind)
	require.NoError(t, err)
	assert.True(t, has)

	require.NoError(t, p.Delete(ctx, b3, schema.MetaRuleKind))
	has, err = p.Has(ctx, b3, schema.MetaRuleKind)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestProperties_SetManyAndDeleteMany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	p := s.Properties("doc-1")

	require.NoError(t, p.SetMany(ctx, b3, map[string]string{
		schema.MetaRuleKind:      string(schema.RuleKindStr),
		schema.MetaShapeName:     "SHAPE_cv_abc",
		schema.MetaModifyTrigger: string(schema.ModifyTriggerCellData),
		schema.MetaCodeName:      "abc",
	}))

	all, err := p.GetAll(ctx, b3)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	require.NoError(t, p.DeleteMany(ctx, b3, schema.ControlKeys))
	all, err = p.GetAll(ctx, b3)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{schema.MetaCodeName: "abc"}, all)
}

func TestProperties_ScopedByDocumentAndCell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Properties("doc-1").Set(ctx, b3, "k", "one"))
	require.NoError(t, s.Properties("doc-2").Set(ctx, b3, "k", "two"))

	other := schema.CellRef{Sheet: "Sheet2", Col: 1, Row: 2}
	_, ok, err := s.Properties("doc-1").Get(ctx, other, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	v, _, err := s.Properties("doc-2").Get(ctx, b3, "k")
	require.NoError(t, err)
	assert.Equal(t, "two", v)
}

func TestProperties_CanceledContext(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Properties("doc-1").Set(ctx, b3, "k", "v")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestAppendEvent_Sequence(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		e := &Event{DocumentID: "doc-1", Cell: b3.String(), Type: schema.EventControlCreated}
		require.NoError(t, s.AppendEvent(ctx, e))
		assert.Equal(t, int64(i+1), e.Sequence)
		assert.NotZero(t, e.ID)
	}

	e := &Event{DocumentID: "doc-2", Cell: b3.String(), Type: schema.EventControlCreated}
	require.NoError(t, s.AppendEvent(ctx, e))
	assert.Equal(t, int64(1), e.Sequence)

	events, err := s.GetEvents(ctx, "doc-1", 1)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Sequence)
}

func TestGetCellEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: "Sheet1!A1", Type: schema.EventControlCreated}))
	require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: "Sheet1!B3", Type: schema.EventControlCreated,
		Payload: transition(t, "unknown", "string")}))

	events, err := s.GetCellEvents(ctx, "doc-1", "Sheet1!B3")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.JSONEq(t, `{"from":"unknown","to":"string"}`, string(events[0].Payload))
}

func TestPruneEvents(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: "Sheet1!A1", Type: schema.EventControlCreated, Timestamp: old}))
	require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: "Sheet1!A1", Type: schema.EventControlRemoved}))

	n, err := s.PruneEvents(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := s.GetEvents(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestDeleteDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Properties("doc-1").Set(ctx, b3, "k", "v"))
	require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: b3.String(), Type: schema.EventControlCreated}))
	require.NoError(t, s.DeleteDocument(ctx, "doc-1"))

	all, err := s.Properties("doc-1").GetAll(ctx, b3)
	require.NoError(t, err)
	assert.Empty(t, all)

	events, err := s.GetEvents(ctx, "doc-1", 0)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestVacuum(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

// --- Replay ---

func TestEventLog_ReplayKinds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	el := NewEventLog(s)

	add := func(cell, typ, from, to string) {
		require.NoError(t, el.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: cell, Type: typ, Payload: transition(t, from, to)}))
	}
	add("Sheet1!A1", schema.EventControlCreated, "unknown", "string")
	add("Sheet1!A1", schema.EventControlReplaced, "string", "integer")
	add("Sheet1!B1", schema.EventControlCreated, "unknown", "float")
	add("Sheet1!B1", schema.EventControlRemoved, "float", "unknown")
	add("Sheet1!C1", schema.EventControlCreated, "unknown", "series")
	add("Sheet1!C1", schema.EventControlRestored, "series", "unknown")

	kinds, err := el.ReplayKinds(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Sheet1!A1": "integer"}, kinds)
}

func TestEventLog_ReplayDetectsGaps(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: "Sheet1!A1", Type: schema.EventControlCreated}))
	}
	_, err := s.DB().ExecContext(ctx, `DELETE FROM control_events WHERE sequence = 2`)
	require.NoError(t, err)

	_, err = NewEventLog(s).ReplayKinds(ctx, "doc-1")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestPruneEvents_KeepsLatestEventPerCell(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	add := func(cell, typ string) {
		require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: cell, Type: typ, Timestamp: old}))
	}
	add("Sheet1!A1", schema.EventControlCreated)
	add("Sheet1!B1", schema.EventControlCreated)
	add("Sheet1!A1", schema.EventControlReplaced)

	n, err := s.PruneEvents(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	events, err := s.GetEvents(ctx, "doc-1", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, int64(2), events[0].Sequence)
	assert.Equal(t, int64(3), events[1].Sequence)

	mark, err := s.PrunedThrough(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), mark)

	mark, err = s.PrunedThrough(ctx, "doc-2")
	require.NoError(t, err)
	assert.Zero(t, mark)
}

func TestEventLog_ReplayAfterPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	el := NewEventLog(s)

	old := time.Now().Add(-48 * time.Hour)
	add := func(cell, typ, from, to string, at time.Time) {
		require.NoError(t, el.AppendEvent(ctx, &Event{
			DocumentID: "doc-1", Cell: cell, Type: typ, Payload: transition(t, from, to), Timestamp: at,
		}))
	}
	// Pruning A1's superseded events leaves holes at 1 and 3.
	add("Sheet1!A1", schema.EventControlCreated, "unknown", "string", old)
	add("Sheet1!B1", schema.EventControlCreated, "unknown", "float", old)
	add("Sheet1!A1", schema.EventControlReplaced, "string", "integer", old)
	add("Sheet1!A1", schema.EventControlReplaced, "integer", "string", old)

	n, err := s.PruneEvents(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	add("Sheet1!C1", schema.EventControlCreated, "unknown", "series", time.Time{})

	kinds, err := el.ReplayKinds(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"Sheet1!A1": "string",
		"Sheet1!B1": "float",
		"Sheet1!C1": "series",
	}, kinds)
}

func TestEventLog_ReplayDetectsGapsAbovePruneWatermark(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour)
	require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: "Sheet1!A1", Type: schema.EventControlCreated, Timestamp: old}))
	for i := 0; i < 3; i++ {
		require.NoError(t, s.AppendEvent(ctx, &Event{DocumentID: "doc-1", Cell: "Sheet1!A1", Type: schema.EventControlReplaced}))
	}
	_, err := s.PruneEvents(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `DELETE FROM control_events WHERE sequence = 3`)
	require.NoError(t, err)

	_, err = NewEventLog(s).ReplayKinds(ctx, "doc-1")
	require.Error(t, err)
	assert.True(t, schema.HasCode(err, schema.ErrCodeStore))
}

func TestMigrate_RecordsEveryScript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	steps, err := loadSchemaSteps()
	require.NoError(t, err)
	require.NotEmpty(t, steps)

	var applied int
	require.NoError(t, s.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM cellview_schema`).Scan(&applied))
	assert.Equal(t, len(steps), applied)
	for i, step := range steps {
		assert.Equal(t, i+1, step.version)
	}
}

func TestSQLStatements_SkipsComments(t *testing.T) {
	stmts := sqlStatements("-- header\nCREATE TABLE a (x INT);\n\n-- next\nCREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, stmts)
}
