package tracker

import (
	"errors"
	"fmt"
	"strings"
)

// Status enumerates the lifecycle stages of an application. Values are stored
// as the display strings the product surfaces, so renaming one is a data
// migration.
type Status string

const (
	// StatusApplied is the initial status assigned on creation.
	StatusApplied Status = "Applied"
	// StatusUnderReview marks an application acknowledged by the employer.
	StatusUnderReview Status = "Under Review"
	// StatusInterviewScheduled marks an application with an interview arranged.
	StatusInterviewScheduled Status = "Interview Scheduled"
	// StatusInterviewCompleted marks an application whose interview took place.
	StatusInterviewCompleted Status = "Interview Completed"
	// StatusOfferReceived marks an application that resulted in an offer.
	StatusOfferReceived Status = "Offer Received"
	// StatusRejected marks an application declined by the employer.
	StatusRejected Status = "Rejected"
	// StatusWithdrawn marks an application retracted by the user.
	StatusWithdrawn Status = "Withdrawn"
)

// NoteType categorizes application notes.
type NoteType string

const (
	// NoteTypeGeneral is the default note category.
	NoteTypeGeneral NoteType = "general"
	// NoteTypeInterview holds interview preparation or debrief notes.
	NoteTypeInterview NoteType = "interview"
	// NoteTypeFollowUp holds follow-up reminders.
	NoteTypeFollowUp NoteType = "follow_up"
	// NoteTypeOffer holds offer details.
	NoteTypeOffer NoteType = "offer"
	// NoteTypeRejection holds rejection feedback.
	NoteTypeRejection NoteType = "rejection"
)

const maxIdentifierLength = 190

var (
	// ErrInvalidUserID indicates that a user identifier is empty or exceeds storage bounds.
	ErrInvalidUserID = errors.New("tracker: invalid user id")
	// ErrInvalidApplicationID indicates that an application identifier is empty or exceeds storage bounds.
	ErrInvalidApplicationID = errors.New("tracker: invalid application id")
	// ErrInvalidJobID indicates that a job identifier is empty or exceeds storage bounds.
	ErrInvalidJobID = errors.New("tracker: invalid job id")
	// ErrUnknownStatus indicates a status value outside the lifecycle enumeration.
	ErrUnknownStatus = errors.New("tracker: unknown status")
	// ErrUnknownNoteType indicates a note type outside the supported categories.
	ErrUnknownNoteType = errors.New("tracker: unknown note type")
)

var statusByName = map[string]Status{
	string(StatusApplied):            StatusApplied,
	string(StatusUnderReview):        StatusUnderReview,
	string(StatusInterviewScheduled): StatusInterviewScheduled,
	string(StatusInterviewCompleted): StatusInterviewCompleted,
	string(StatusOfferReceived):      StatusOfferReceived,
	string(StatusRejected):           StatusRejected,
	string(StatusWithdrawn):          StatusWithdrawn,
}

var noteTypeByName = map[string]NoteType{
	string(NoteTypeGeneral):   NoteTypeGeneral,
	string(NoteTypeInterview): NoteTypeInterview,
	string(NoteTypeFollowUp):  NoteTypeFollowUp,
	string(NoteTypeOffer):     NoteTypeOffer,
	string(NoteTypeRejection): NoteTypeRejection,
}

// ParseStatus validates a raw status value against the lifecycle enumeration.
func ParseStatus(rawInput string) (Status, error) {
	status, ok := statusByName[strings.TrimSpace(rawInput)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, rawInput)
	}
	return status, nil
}

// InterviewStage reports whether the status carries an interview timestamp.
func (s Status) InterviewStage() bool {
	return s == StatusInterviewScheduled || s == StatusInterviewCompleted
}

// ParseNoteType validates a raw note type value.
func ParseNoteType(rawInput string) (NoteType, error) {
	noteType, ok := noteTypeByName[strings.TrimSpace(strings.ToLower(rawInput))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownNoteType, rawInput)
	}
	return noteType, nil
}

// UserID represents a validated user identifier.
type UserID string

// NewUserID validates raw input and returns a UserID.
func NewUserID(rawInput string) (UserID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidUserID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidUserID, maxIdentifierLength)
	}
	return UserID(trimmed), nil
}

// String returns the underlying string identifier.
func (id UserID) String() string {
	return string(id)
}

// ApplicationID represents a validated application identifier.
type ApplicationID string

// NewApplicationID validates raw input and returns an ApplicationID.
func NewApplicationID(rawInput string) (ApplicationID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidApplicationID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidApplicationID, maxIdentifierLength)
	}
	return ApplicationID(trimmed), nil
}

// String returns the underlying string identifier.
func (id ApplicationID) String() string {
	return string(id)
}

// JobID represents a validated job listing identifier. The catalog owns the
// value; the tracker only checks storage bounds.
type JobID string

// NewJobID validates raw input and returns a JobID.
func NewJobID(rawInput string) (JobID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidJobID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidJobID, maxIdentifierLength)
	}
	return JobID(trimmed), nil
}

// String returns the underlying string identifier.
func (id JobID) String() string {
	return string(id)
}

// Application models one user's application to one job listing. The unique
// index on (user_id, job_id) is the duplicate guard: creation races resolve at
// the storage layer, and a withdrawn application still blocks a fresh apply
// for the same job.
type Application struct {
	ApplicationID      string `gorm:"column:application_id;primaryKey;size:190;not null"`
	UserID             string `gorm:"column:user_id;size:190;not null;uniqueIndex:idx_applications_user_job,priority:1;index:idx_applications_user_applied,priority:1"`
	JobID              string `gorm:"column:job_id;size:190;not null;uniqueIndex:idx_applications_user_job,priority:2"`
	Status             Status `gorm:"column:status;size:64;not null;default:'Applied'"`
	AppliedAtSeconds   int64  `gorm:"column:applied_at_s;not null;index:idx_applications_user_applied,priority:2"`
	InterviewAtSeconds *int64 `gorm:"column:interview_at_s"`
	FollowUpAtSeconds  *int64 `gorm:"column:follow_up_at_s"`
	ContactPerson      string `gorm:"column:contact_person;size:320;not null;default:''"`
	ContactEmail       string `gorm:"column:contact_email;size:320;not null;default:''"`
	NotesSummary       string `gorm:"column:notes_summary;type:text;not null;default:''"`
	CreatedAtSeconds   int64  `gorm:"column:created_at_s;not null"`
	UpdatedAtSeconds   int64  `gorm:"column:updated_at_s;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Application) TableName() string {
	return "applications"
}

// ApplicationNote is an immutable annotation attached to an application.
// Rows are only ever inserted; the ledger is read newest-first.
type ApplicationNote struct {
	NoteID           string   `gorm:"column:note_id;primaryKey;size:190;not null"`
	ApplicationID    string   `gorm:"column:application_id;size:190;not null;index:idx_application_notes_app_created,priority:1"`
	UserID           string   `gorm:"column:user_id;size:190;not null"`
	NoteType         NoteType `gorm:"column:note_type;size:32;not null;default:'general'"`
	Content          string   `gorm:"column:content;type:text;not null"`
	CreatedAtSeconds int64    `gorm:"column:created_at_s;not null;index:idx_application_notes_app_created,priority:2"`
}

// TableName provides the explicit table binding for GORM.
func (ApplicationNote) TableName() string {
	return "application_notes"
}
