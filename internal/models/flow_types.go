// Package models defines flow type definitions to avoid circular imports.
package models

// Verdict is the tri-state outcome of qualification.
type Verdict string

// Verdict constants.
const (
	VerdictUnknown      Verdict = "unknown"
	VerdictQualified    Verdict = "qualified"
	VerdictDisqualified Verdict = "disqualified"
)

// SubmissionState tracks the contact submission of a session.
type SubmissionState string

// Submission state constants.
const (
	SubmissionNone       SubmissionState = "not_submitted"
	SubmissionSubmitting SubmissionState = "submitting"
	SubmissionSubmitted  SubmissionState = "submitted"
	SubmissionFailed     SubmissionState = "failed"
)

// Question ids the qualification rules depend on.
const (
	QuestionAccidentDate         = "accidentDate"
	QuestionMedicalTreatment     = "medicalTreatment"
	QuestionMedicalTreatmentDate = "medicalTreatmentDate"
	QuestionAtFault              = "atFault"
	QuestionHasAttorney          = "hasAttorney"
	QuestionMovingViolation      = "movingViolation"
	QuestionPriorSettlement      = "priorSettlement"
	QuestionInsuranceCoverage    = "insuranceCoverage"
)

// Attorney answers accepted by the qualification rules.
const (
	AttorneyNone         = "no"
	AttorneyConsidering  = "yes-change"
	AttorneyKeepExisting = "yes"
)
