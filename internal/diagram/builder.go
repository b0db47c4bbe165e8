package diagram

import (
	"cmp"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/rendis/cellview/internal/store"
	"github.com/rendis/cellview/pkg/schema"
)

// Build constructs the control lifecycle graph of a document from its event
// log. Nodes are control kinds and edges count the transitions between them.
// current maps cell addresses to their replayed kind key and feeds the
// per-node cell counts; it may be nil.
func Build(title string, events []*store.Event, current map[string]string) (*DiagramModel, error) {
	counts := make(map[[2]schema.CtlKind]int)
	seen := map[schema.CtlKind]bool{schema.CtlUnknown: true}

	for _, e := range events {
		if len(e.Payload) == 0 {
			continue
		}
		var p store.TransitionPayload
		if err := json.Unmarshal(e.Payload, &p); err != nil {
			return nil, fmt.Errorf("diagram: event %d: %w", e.Sequence, err)
		}
		from, to := schema.ParseCtlKind(p.From), schema.ParseCtlKind(p.To)
		seen[from], seen[to] = true, true
		counts[[2]schema.CtlKind{from, to}]++
	}

	cells := make(map[schema.CtlKind]int)
	for _, key := range current {
		k := schema.ParseCtlKind(key)
		seen[k] = true
		cells[k]++
	}

	kinds := make([]schema.CtlKind, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)

	model := &DiagramModel{Title: title}
	var controls []string
	for _, k := range kinds {
		model.Nodes = append(model.Nodes, kindToNode(k, cells[k]))
		if k != schema.CtlUnknown {
			controls = append(controls, k.Key())
		}
	}

	for pair, n := range counts {
		model.Edges = append(model.Edges, Edge{
			From:  pair[0].Key(),
			To:    pair[1].Key(),
			Label: fmt.Sprintf("%dx", n),
			Count: n,
		})
	}
	slices.SortFunc(model.Edges, func(a, b Edge) int {
		if c := cmp.Compare(schema.ParseCtlKind(a.From), schema.ParseCtlKind(b.From)); c != 0 {
			return c
		}
		return cmp.Compare(schema.ParseCtlKind(a.To), schema.ParseCtlKind(b.To))
	})

	model.Levels = [][]string{{schema.CtlUnknown.Key()}}
	if len(controls) > 0 {
		model.Levels = append(model.Levels, controls)
	}
	return model, nil
}

func kindToNode(k schema.CtlKind, cells int) *Node {
	if k == schema.CtlUnknown {
		return &Node{ID: k.Key(), Label: "no control", Kind: NodeKindEmpty}
	}
	label := k.Key()
	if cells > 0 {
		label = fmt.Sprintf("%s\n%d %s", k.Key(), cells, plural(cells, "cell"))
	}
	return &Node{ID: k.Key(), Label: label, Kind: NodeKindControl, Cells: cells}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
