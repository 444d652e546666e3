package flow

import (
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/ClaimCheck/internal/models"
)

// snapshot is the JSON form of a session. The live catalog is stored as its
// id order and rebuilt against the engine's base catalog on load.
type snapshot struct {
	Catalog []string       `json:"catalog"`
	Answers models.Answers `json:"answers"`
	State   State          `json:"state"`
}

// Snapshot encodes s for persistence.
func (s *Session) Snapshot() (models.SessionRecord, error) {
	data, err := json.Marshal(snapshot{
		Catalog: s.Catalog.IDs(),
		Answers: s.Answers,
		State:   s.State,
	})
	if err != nil {
		return models.SessionRecord{}, fmt.Errorf("encode session %s: %w", s.ID, err)
	}
	return models.SessionRecord{
		ID:         s.ID,
		Generation: s.State.Generation,
		Verdict:    s.State.Verdict,
		Submission: s.State.Submission,
		TestMode:   s.TestMode,
		Data:       string(data),
		CreatedAt:  s.CreatedAt,
		UpdatedAt:  s.UpdatedAt,
	}, nil
}

// Restore rebuilds a session from its persisted record.
func (e *Engine) Restore(rec models.SessionRecord) (*Session, error) {
	var snap snapshot
	if err := json.Unmarshal([]byte(rec.Data), &snap); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", rec.ID, err)
	}
	live, err := e.base.Restore(snap.Catalog)
	if err != nil {
		return nil, fmt.Errorf("decode session %s: %w", rec.ID, err)
	}
	if snap.Answers == nil {
		snap.Answers = models.Answers{}
	}
	if snap.State.Cursor < 0 || snap.State.Cursor > live.Len() {
		return nil, fmt.Errorf("decode session %s: cursor %d outside catalog of %d", rec.ID, snap.State.Cursor, live.Len())
	}
	return &Session{
		ID:        rec.ID,
		TestMode:  rec.TestMode,
		Catalog:   live,
		Answers:   snap.Answers,
		State:     snap.State,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}
