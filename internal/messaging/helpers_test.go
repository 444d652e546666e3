package messaging

import (
	"github.com/BTreeMap/ClaimCheck/internal/flow"
	"github.com/BTreeMap/ClaimCheck/internal/models"
)

func flowSubmission() flow.Submission {
	answers := models.Answers{}
	answers.Set("accident_date", models.DateAnswer("2026-03-01"))
	return flow.Submission{
		SessionID: "s1",
		Answers:   answers,
		Contact:   models.ContactInfo{Name: "Dana Reyes", Phone: "+15551234567"},
		Qualified: true,
	}
}
