package catalog

import (
	"fmt"
	"log/slog"
	"slices"
)

// Catalog is an ordered sequence of questions. It is never mutated in place:
// InsertAfter returns a new Catalog, so earlier snapshots stay valid.
type Catalog struct {
	questions []Question
}

// New builds a catalog from questions in order.
func New(questions ...Question) Catalog {
	return Catalog{questions: slices.Clone(questions)}
}

// Len returns the number of questions currently in the catalog.
func (c Catalog) Len() int {
	return len(c.questions)
}

// Current returns the question at cursor, or false once the cursor has moved
// past the last question.
func (c Catalog) Current(cursor int) (Question, bool) {
	if cursor < 0 || cursor >= len(c.questions) {
		return Question{}, false
	}
	return c.questions[cursor], true
}

// Questions returns a copy of the questions in order.
func (c Catalog) Questions() []Question {
	return slices.Clone(c.questions)
}

// IDs returns the question ids in order.
func (c Catalog) IDs() []string {
	ids := make([]string, len(c.questions))
	for i, q := range c.questions {
		ids[i] = q.ID
	}
	return ids
}

// Position returns the index of the question with the given id, or -1.
func (c Catalog) Position(id string) int {
	return slices.IndexFunc(c.questions, func(q Question) bool { return q.ID == id })
}

// Lookup returns the question with the given id.
func (c Catalog) Lookup(id string) (Question, bool) {
	if i := c.Position(id); i >= 0 {
		return c.questions[i], true
	}
	return Question{}, false
}

// InsertAfter returns a catalog with q spliced in immediately after index.
// The insertion is a no-op when q is already present, which keeps ids unique
// and makes repeated insertion of the same follow-up idempotent.
func (c Catalog) InsertAfter(index int, q Question) Catalog {
	if index < 0 || index >= len(c.questions) {
		slog.Warn("Catalog.InsertAfter: index out of range", "index", index, "len", len(c.questions), "question", q.ID)
		return c
	}
	if index+1 < len(c.questions) && c.questions[index+1].ID == q.ID {
		return c
	}
	if c.Position(q.ID) >= 0 {
		slog.Debug("Catalog.InsertAfter: question already present elsewhere", "question", q.ID, "index", index)
		return c
	}

	out := make([]Question, 0, len(c.questions)+1)
	out = append(out, c.questions[:index+1]...)
	out = append(out, q)
	out = append(out, c.questions[index+1:]...)
	slog.Debug("Catalog.InsertAfter: spliced question", "question", q.ID, "after", c.questions[index].ID)
	return Catalog{questions: out}
}

// Index returns every question reachable from the catalog, including
// follow-ups that have not been spliced in yet, keyed by id.
func (c Catalog) Index() map[string]Question {
	idx := make(map[string]Question)
	var walk func(q Question)
	walk = func(q Question) {
		if _, seen := idx[q.ID]; seen {
			return
		}
		idx[q.ID] = q
		if q.FollowUp != nil {
			walk(q.FollowUp.Question)
		}
	}
	for _, q := range c.questions {
		walk(q)
	}
	return idx
}

// Restore rebuilds a live catalog from its persisted id order, resolving each
// id against the questions reachable from c.
func (c Catalog) Restore(ids []string) (Catalog, error) {
	idx := c.Index()
	out := make([]Question, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		q, ok := idx[id]
		if !ok {
			return Catalog{}, fmt.Errorf("restore catalog: unknown question %q", id)
		}
		if seen[id] {
			return Catalog{}, fmt.Errorf("restore catalog: duplicate question %q", id)
		}
		seen[id] = true
		out = append(out, q)
	}
	return Catalog{questions: out}, nil
}
