package tracker

import (
	"fmt"
	"strings"
	"time"
)

// NoteDraft is a note bundled with a status transition. It is persisted in the
// same transaction as the status change.
type NoteDraft struct {
	Type    string
	Content string
}

// TransitionRequest describes a requested status change plus optional field
// updates. Optional fields use pointers: nil leaves the stored value
// untouched, an empty string clears it.
type TransitionRequest struct {
	Status        string
	InterviewAt   *string
	FollowUpAt    *string
	ContactPerson *string
	ContactEmail  *string
	NotesSummary  *string
	Note          *NoteDraft
}

// DetailsPatch updates contact and scheduling details without touching the
// lifecycle status.
type DetailsPatch struct {
	ContactPerson *string
	ContactEmail  *string
	FollowUpAt    *string
	NotesSummary  *string
}

// applyTransition validates the requested transition and mutates the
// application in place. Validation happens before any mutation, so a failed
// call leaves the application unchanged. Any status may move to any other
// status; only field consistency is checked: timestamps must parse as RFC 3339
// and interview_at is accepted only when the target status is an interview
// stage. Moving to a non-interview stage clears interview_at.
func applyTransition(application *Application, request TransitionRequest, now time.Time) error {
	status, err := ParseStatus(request.Status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	interviewAt, interviewProvided, err := parseOptionalTimestamp("interview_at", request.InterviewAt)
	if err != nil {
		return err
	}
	if interviewProvided && interviewAt != nil && !status.InterviewStage() {
		return fmt.Errorf("%w: interview_at is only accepted for %s and %s",
			ErrInvalidInput, StatusInterviewScheduled, StatusInterviewCompleted)
	}

	followUpAt, followUpProvided, err := parseOptionalTimestamp("follow_up_at", request.FollowUpAt)
	if err != nil {
		return err
	}

	application.Status = status
	if !status.InterviewStage() {
		application.InterviewAtSeconds = nil
	} else if interviewProvided {
		application.InterviewAtSeconds = interviewAt
	}
	if followUpProvided {
		application.FollowUpAtSeconds = followUpAt
	}
	applyContactFields(application, request.ContactPerson, request.ContactEmail, request.NotesSummary)
	application.UpdatedAtSeconds = now.UTC().Unix()
	return nil
}

// applyDetails validates and applies a detail-only patch, leaving the status
// and interview timestamp untouched.
func applyDetails(application *Application, patch DetailsPatch, now time.Time) error {
	followUpAt, followUpProvided, err := parseOptionalTimestamp("follow_up_at", patch.FollowUpAt)
	if err != nil {
		return err
	}

	if followUpProvided {
		application.FollowUpAtSeconds = followUpAt
	}
	applyContactFields(application, patch.ContactPerson, patch.ContactEmail, patch.NotesSummary)
	application.UpdatedAtSeconds = now.UTC().Unix()
	return nil
}

func applyContactFields(application *Application, contactPerson, contactEmail, notesSummary *string) {
	if contactPerson != nil {
		application.ContactPerson = strings.TrimSpace(*contactPerson)
	}
	if contactEmail != nil {
		application.ContactEmail = strings.TrimSpace(*contactEmail)
	}
	if notesSummary != nil {
		application.NotesSummary = strings.TrimSpace(*notesSummary)
	}
}

// parseOptionalTimestamp interprets an optional RFC 3339 field. The second
// return value reports whether the field was provided at all; a provided empty
// string yields a nil timestamp, meaning clear.
func parseOptionalTimestamp(field string, value *string) (*int64, bool, error) {
	if value == nil {
		return nil, false, nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil, true, nil
	}
	parsed, err := time.Parse(time.RFC3339, trimmed)
	if err != nil {
		return nil, false, fmt.Errorf("%w: %s must be an RFC 3339 timestamp: %v", ErrInvalidInput, field, err)
	}
	seconds := parsed.UTC().Unix()
	return &seconds, true, nil
}
