// Package models defines the core data structures for ClaimCheck.
//
// It includes the answer store, contact details, leads and the API response
// envelope, which are shared across modules.
package models

import (
	"errors"
	"net/mail"
	"strconv"
	"strings"
	"time"
)

// Validation constants for contact input.
const (
	// MaxNameLength defines the maximum allowed length for a contact name
	MaxNameLength = 200
	// MaxNotesLength defines the maximum allowed length for free-text notes
	MaxNotesLength = 2000
	// MinPhoneDigits defines the minimum number of digits in a phone number
	MinPhoneDigits = 7
)

// Error variables for contact validation.
var (
	ErrEmptyName          = errors.New("name is required")
	ErrNameTooLong        = errors.New("name exceeds maximum length")
	ErrMissingContact     = errors.New("a phone number or email address is required")
	ErrInvalidPhone       = errors.New("phone number is not valid")
	ErrInvalidEmail       = errors.New("email address is not valid")
	ErrNotesTooLong       = errors.New("notes exceed maximum length")
	ErrInvalidContactPref = errors.New("preferred contact method must be phone, email or text")
)

// ContactMethod is the user's preferred way of being reached.
type ContactMethod string

const (
	ContactMethodPhone ContactMethod = "phone"
	ContactMethodEmail ContactMethod = "email"
	ContactMethodText  ContactMethod = "text"
)

// ContactInfo is what the contact-capture step collects from the user.
type ContactInfo struct {
	Name             string        `json:"name" yaml:"name"`
	Phone            string        `json:"phone,omitempty" yaml:"phone,omitempty"`
	Email            string        `json:"email,omitempty" yaml:"email,omitempty"`
	PreferredContact ContactMethod `json:"preferred_contact,omitempty" yaml:"preferred_contact,omitempty"`
	Notes            string        `json:"notes,omitempty" yaml:"notes,omitempty"`
	// Simplified marks submissions made through the reduced form offered
	// after a disqualification.
	Simplified bool `json:"simplified,omitempty" yaml:"simplified,omitempty"`
}

// Validate checks the contact details a lead needs to be actionable.
func (c *ContactInfo) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return ErrEmptyName
	}
	if len(c.Name) > MaxNameLength {
		return ErrNameTooLong
	}
	if c.Phone == "" && c.Email == "" {
		return ErrMissingContact
	}
	if c.Phone != "" && countDigits(c.Phone) < MinPhoneDigits {
		return ErrInvalidPhone
	}
	if c.Email != "" {
		if _, err := mail.ParseAddress(c.Email); err != nil {
			return ErrInvalidEmail
		}
	}
	if len(c.Notes) > MaxNotesLength {
		return ErrNotesTooLong
	}
	switch c.PreferredContact {
	case "", ContactMethodPhone, ContactMethodEmail, ContactMethodText:
	default:
		return ErrInvalidContactPref
	}
	return nil
}

func countDigits(s string) int {
	n := 0
	for _, r := range s {
		if r >= '0' && r <= '9' {
			n++
		}
	}
	return n
}

// Lead is a submitted evaluation together with the user's contact details.
type Lead struct {
	ID         string      `json:"id"`
	SessionID  string      `json:"session_id"`
	Generation int         `json:"generation"`
	Qualified  bool        `json:"qualified"`
	TestMode   bool        `json:"test_mode"`
	Reasons    []string    `json:"reasons,omitempty"`
	Answers    Answers     `json:"answers"`
	Contact    ContactInfo `json:"contact"`
	CreatedAt  time.Time   `json:"created_at"`
}

// DedupeKey identifies one evaluation of one session; a retried submission
// of the same evaluation maps onto the same lead.
func (l Lead) DedupeKey() string {
	return DedupeKey(l.SessionID, l.Generation)
}

// DedupeKey builds the lead deduplication key for a session generation.
func DedupeKey(sessionID string, generation int) string {
	return sessionID + ":" + strconv.Itoa(generation)
}

// MessageStatus represents the delivery status of a notification.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records the outcome of one notification send.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// API Response types for consistent JSON responses

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}

// ErrorWithResult creates an error API response that still carries data, such
// as the session view alongside a validation message.
func ErrorWithResult(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		WithResult(result).
		Build()
}

// SessionRecord is the persisted form of a questionnaire session. Data holds
// the JSON snapshot; the other fields are copied out for listing and queries.
type SessionRecord struct {
	ID         string          `json:"id"`
	Generation int             `json:"generation"`
	Verdict    Verdict         `json:"verdict"`
	Submission SubmissionState `json:"submission"`
	TestMode   bool            `json:"test_mode"`
	Data       string          `json:"data"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}
