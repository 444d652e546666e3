package flow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/store"
)

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	s := e.NewSession(true)
	driveUntil(t, e, s, favorable(), models.QuestionHasAttorney)
	if err := e.Record(s, models.QuestionAtFault, models.UnsureAnswer()); err != nil {
		t.Fatal(err)
	}

	rec, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if rec.ID != s.ID || !rec.TestMode || rec.Verdict != models.VerdictUnknown {
		t.Errorf("record summary fields wrong: %+v", rec)
	}

	got, err := e.Restore(rec)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if diff := cmp.Diff(s.Catalog.IDs(), got.Catalog.IDs()); diff != "" {
		t.Errorf("catalog mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.Answers, got.Answers); diff != "" {
		t.Errorf("answers mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(s.State, got.State); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}

	// The restored session keeps working, including the spliced follow-up's validator.
	q, _ := got.Catalog.Lookup(models.QuestionMedicalTreatmentDate)
	if q.Validate == nil {
		t.Error("restored follow-up lost its validator")
	}
	driveUntil(t, e, got, favorable(), "")
	if got.State.Verdict != models.VerdictQualified {
		t.Errorf("expected restored session to qualify, got %s", got.State.Verdict)
	}
}

func TestRestoreRejectsCorruptRecords(t *testing.T) {
	e := newTestEngine(t)
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad json", "{", "decode session"},
		{"unknown question", `{"catalog":["nope"],"answers":{},"state":{}}`, "unknown question"},
		{"cursor out of range", `{"catalog":["accidentDate"],"answers":{},"state":{"cursor":5}}`, "outside catalog"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Restore(models.SessionRecord{ID: "x", Data: tt.data})
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestStoreBasedSessionManager(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	sm := NewStoreBasedSessionManager(e, store.NewInMemoryStore())

	s, err := sm.Create(ctx, false)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	answerAndAdvance(t, e, s, models.DateAnswer(daysAgo(30)))
	if err := sm.Save(ctx, s); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := sm.Load(ctx, s.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.State.Cursor != 1 || !loaded.Answers.Has(models.QuestionAccidentDate) {
		t.Errorf("loaded session out of date: %+v", loaded.State)
	}

	if err := sm.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := sm.Load(ctx, s.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected not found after delete, got %v", err)
	}
}
