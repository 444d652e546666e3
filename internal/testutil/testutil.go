// Package testutil provides shared fixtures for ClaimCheck tests: a fixed
// clock, an engine over the default catalog, scripted answers and an API
// server backed by the in-memory store.
package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/BTreeMap/ClaimCheck/internal/api"
	"github.com/BTreeMap/ClaimCheck/internal/catalog"
	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/lead"
	"github.com/BTreeMap/ClaimCheck/internal/models"
	"github.com/BTreeMap/ClaimCheck/internal/qualify"
	"github.com/BTreeMap/ClaimCheck/internal/store"
)

// TB is the subset of testing.TB the helpers use.
type TB interface {
	Helper()
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
}

// Now is the fixed clock every fixture uses.
var Now = time.Date(2026, time.March, 15, 9, 0, 0, 0, time.UTC)

// Clock returns Now.
func Clock() time.Time {
	return Now
}

// DaysAgo formats the calendar date n days before Now.
func DaysAgo(n int) string {
	return Now.AddDate(0, 0, -n).Format(models.DateLayout)
}

// NotifyRecipient receives lead notifications in test servers.
const NotifyRecipient = "+15550100200"

// NewEngine builds an engine over the default catalog with the fixed clock
// and sequential session ids.
func NewEngine(t TB) *flow.Engine {
	t.Helper()
	base, err := catalog.Default(catalog.Env{Now: Clock, Rules: qualify.DefaultRules()})
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	n := 0
	return flow.NewEngine(base,
		flow.WithClock(Clock),
		flow.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("session-%d", n)
		}),
	)
}

// Step is one scripted answer in its JSON wire form.
type Step struct {
	QuestionID string      `json:"question_id"`
	Value      interface{} `json:"value"`
}

// QualifyingSteps answers every question of the default catalog, follow-up
// included, so that the evaluation qualifies.
func QualifyingSteps() []Step {
	return []Step{
		{QuestionID: models.QuestionAccidentDate, Value: DaysAgo(200)},
		{QuestionID: models.QuestionMedicalTreatment, Value: true},
		{QuestionID: models.QuestionMedicalTreatmentDate, Value: DaysAgo(170)},
		{QuestionID: models.QuestionAtFault, Value: false},
		{QuestionID: models.QuestionHasAttorney, Value: models.AttorneyNone},
		{QuestionID: models.QuestionMovingViolation, Value: false},
		{QuestionID: models.QuestionPriorSettlement, Value: false},
		{QuestionID: models.QuestionInsuranceCoverage, Value: []string{"liability"}},
	}
}

// Contact is a valid set of contact details.
func Contact() models.ContactInfo {
	return models.ContactInfo{
		Name:             "Jordan Rivera",
		Phone:            "(555) 010-4477",
		Email:            "jordan@example.com",
		PreferredContact: models.ContactMethodPhone,
	}
}

// TestServer is an API server over in-memory collaborators.
type TestServer struct {
	Server   *api.Server
	Handler  http.Handler
	Store    *store.InMemoryStore
	Sessions *flow.StoreBasedSessionManager
}

// NewTestServer wires an API server. A nil submitter selects the real lead
// submitter over the same in-memory store.
func NewTestServer(t TB, submitter flow.LeadSubmitter) *TestServer {
	t.Helper()
	st := store.NewInMemoryStore()
	sessions := flow.NewStoreBasedSessionManager(NewEngine(t), st)
	if submitter == nil {
		n := 0
		submitter = lead.NewSubmitter(st,
			lead.WithRecipients(NotifyRecipient),
			lead.WithClock(Clock),
			lead.WithIDGenerator(func() string {
				n++
				return fmt.Sprintf("lead-%d", n)
			}),
		)
	}
	srv := api.NewServer(sessions, submitter, st)
	return &TestServer{Server: srv, Handler: srv.Handler(), Store: st, Sessions: sessions}
}

// Do sends a request with an optional JSON body to the server's handler.
func (ts *TestServer) Do(t TB, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	ts.Handler.ServeHTTP(rr, CreateHTTPRequest(t, method, url, body))
	return rr
}

// CreateSession starts a session and returns its id.
func (ts *TestServer) CreateSession(t TB) string {
	t.Helper()
	rr := ts.Do(t, http.MethodPost, "/sessions", nil)
	AssertHTTPStatus(t, http.StatusCreated, rr.Code, "create session")
	var view flow.View
	DecodeResult(t, rr, &view)
	return view.SessionID
}

// AnswerAll records and advances through steps, failing on any non-200 reply.
func (ts *TestServer) AnswerAll(t TB, id string, steps []Step) {
	t.Helper()
	for _, step := range steps {
		rr := ts.Do(t, http.MethodPost, "/sessions/"+id+"/answers", step)
		AssertHTTPStatus(t, http.StatusOK, rr.Code, "answer "+step.QuestionID)
		rr = ts.Do(t, http.MethodPost, "/sessions/"+id+"/next", nil)
		AssertHTTPStatus(t, http.StatusOK, rr.Code, "next after "+step.QuestionID)
	}
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// DecodeResult decodes an API envelope and its result into target, and
// returns the envelope with its result left raw.
func DecodeResult(t TB, rr *httptest.ResponseRecorder, target interface{}) Envelope {
	t.Helper()
	var env Envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("failed to decode JSON response: %v (body %q)", err, rr.Body.String())
	}
	if target != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, target); err != nil {
			t.Fatalf("failed to decode result: %v", err)
		}
	}
	return env
}

// Envelope mirrors models.APIResponse with the result kept as raw JSON.
type Envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) Envelope {
	t.Helper()
	env := DecodeResult(t, rr, nil)
	if env.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, env.Status, env.Message)
	}
	return env
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		reqBody = bytes.NewBuffer(MustMarshalJSON(t, body))
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t TB, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
