package tracker

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	errEmptyNoteContent  = errors.New("note content must not be empty")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew       = "tracker.service.new"
	opApply            = "tracker.apply"
	opGetApplication   = "tracker.get_application"
	opListApplications = "tracker.list_applications"
	opUpdateStatus     = "tracker.update_status"
	opUpdateDetails    = "tracker.update_details"
	opAddNote          = "tracker.add_note"
	opListNotes        = "tracker.list_notes"
	opDashboard        = "tracker.dashboard"

	fieldUserID        = "user_id"
	fieldApplicationID = "application_id"
	fieldJobID         = "job_id"

	reasonMissingDatabase      = "missing_database"
	reasonMissingIDProvider    = "missing_id_provider"
	reasonIDGenerationFailed   = "id_generation_failed"
	reasonInsertFailed         = "insert_failed"
	reasonDuplicateApplication = "duplicate_application"
	reasonNotFound             = "not_found"
	reasonLookupFailed         = "lookup_failed"
	reasonQueryFailed          = "query_failed"
	reasonInvalidTransition    = "invalid_transition"
	reasonInvalidDetails       = "invalid_details"
	reasonInvalidNote          = "invalid_note"
	reasonSaveFailed           = "save_failed"
	reasonNoteInsertFailed     = "note_insert_failed"

	queryOwnedApplication = "application_id = ? AND user_id = ?"
)

// ServiceConfig bundles the dependencies of the lifecycle service.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// IDProvider issues opaque record identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Service orchestrates the application lifecycle: creation behind the
// duplicate guard, validated status transitions, the note ledger and the
// dashboard rollup. All operations are scoped to the owning user.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, ErrStorageUnavailable, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, reasonMissingIDProvider, ErrStorageUnavailable, errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// Apply records a new application for the given job in the initial status.
// The existence check and insert are a single atomic statement: the unique
// (user_id, job_id) index absorbs the conflict and a zero rows-affected
// result reports the duplicate.
func (s *Service) Apply(ctx context.Context, userID UserID, jobID JobID) (Application, error) {
	if err := s.guardDependencies(opApply, userID); err != nil {
		return Application{}, err
	}

	applicationID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opApply, reasonIDGenerationFailed, err, zap.String(fieldUserID, userID.String()))
		return Application{}, newServiceError(opApply, reasonIDGenerationFailed, ErrStorageUnavailable, err)
	}

	now := s.clock().UTC().Unix()
	application := Application{
		ApplicationID:    applicationID,
		UserID:           userID.String(),
		JobID:            jobID.String(),
		Status:           StatusApplied,
		AppliedAtSeconds: now,
		CreatedAtSeconds: now,
		UpdatedAtSeconds: now,
	}

	result := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&application)
	if result.Error != nil {
		s.logError(opApply, reasonInsertFailed, result.Error,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldJobID, jobID.String()))
		return Application{}, newServiceError(opApply, reasonInsertFailed, ErrStorageUnavailable, result.Error)
	}
	if result.RowsAffected == 0 {
		return Application{}, newServiceError(opApply, reasonDuplicateApplication, ErrDuplicateApplication, nil)
	}

	return application, nil
}

// GetApplication returns the application when it exists and belongs to the
// user. An application owned by someone else is reported as not found.
func (s *Service) GetApplication(ctx context.Context, applicationID ApplicationID, userID UserID) (Application, error) {
	if err := s.guardDependencies(opGetApplication, userID); err != nil {
		return Application{}, err
	}
	return s.loadOwnedApplication(s.db.WithContext(ctx), opGetApplication, applicationID, userID, false)
}

// ListApplications returns the user's applications, most recently applied
// first. Equal timestamps fall back to the application id so the order is
// stable.
func (s *Service) ListApplications(ctx context.Context, userID UserID) ([]Application, error) {
	if err := s.guardDependencies(opListApplications, userID); err != nil {
		return nil, err
	}

	var applications []Application
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID.String()).
		Order("applied_at_s DESC, application_id DESC").
		Find(&applications).Error
	if err != nil {
		s.logError(opListApplications, reasonQueryFailed, err, zap.String(fieldUserID, userID.String()))
		return nil, newServiceError(opListApplications, reasonQueryFailed, ErrStorageUnavailable, err)
	}
	return applications, nil
}

// UpdateStatus applies a validated status transition, optional field updates
// and an optional bundled note as one atomic unit. The row is locked for the
// duration of the transaction; a validation failure rolls everything back and
// leaves the application unchanged.
func (s *Service) UpdateStatus(ctx context.Context, applicationID ApplicationID, userID UserID, request TransitionRequest) (Application, error) {
	if err := s.guardDependencies(opUpdateStatus, userID); err != nil {
		return Application{}, err
	}

	var updated Application
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		application, err := s.loadOwnedApplication(tx, opUpdateStatus, applicationID, userID, true)
		if err != nil {
			return err
		}

		if err := applyTransition(&application, request, s.clock()); err != nil {
			return newServiceError(opUpdateStatus, reasonInvalidTransition, ErrInvalidInput, err)
		}

		if err := tx.Save(&application).Error; err != nil {
			s.logError(opUpdateStatus, reasonSaveFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldApplicationID, applicationID.String()))
			return newServiceError(opUpdateStatus, reasonSaveFailed, ErrStorageUnavailable, err)
		}

		if request.Note != nil {
			note, err := s.buildNote(application, request.Note.Type, request.Note.Content)
			if err != nil {
				return newServiceError(opUpdateStatus, reasonInvalidNote, ErrInvalidInput, err)
			}
			if err := tx.Create(&note).Error; err != nil {
				s.logError(opUpdateStatus, reasonNoteInsertFailed, err,
					zap.String(fieldUserID, userID.String()),
					zap.String(fieldApplicationID, applicationID.String()))
				return newServiceError(opUpdateStatus, reasonNoteInsertFailed, ErrStorageUnavailable, err)
			}
		}

		updated = application
		return nil
	})
	if txErr != nil {
		return Application{}, txErr
	}
	return updated, nil
}

// UpdateDetails patches contact and scheduling details without routing
// through the state machine. The status and interview timestamp are never
// touched here.
func (s *Service) UpdateDetails(ctx context.Context, applicationID ApplicationID, userID UserID, patch DetailsPatch) (Application, error) {
	if err := s.guardDependencies(opUpdateDetails, userID); err != nil {
		return Application{}, err
	}

	var updated Application
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		application, err := s.loadOwnedApplication(tx, opUpdateDetails, applicationID, userID, true)
		if err != nil {
			return err
		}

		if err := applyDetails(&application, patch, s.clock()); err != nil {
			return newServiceError(opUpdateDetails, reasonInvalidDetails, ErrInvalidInput, err)
		}

		if err := tx.Save(&application).Error; err != nil {
			s.logError(opUpdateDetails, reasonSaveFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldApplicationID, applicationID.String()))
			return newServiceError(opUpdateDetails, reasonSaveFailed, ErrStorageUnavailable, err)
		}

		updated = application
		return nil
	})
	if txErr != nil {
		return Application{}, txErr
	}
	return updated, nil
}

// AddNote appends an immutable note to the application's ledger.
func (s *Service) AddNote(ctx context.Context, applicationID ApplicationID, userID UserID, noteType, content string) (ApplicationNote, error) {
	if err := s.guardDependencies(opAddNote, userID); err != nil {
		return ApplicationNote{}, err
	}

	var created ApplicationNote
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		application, err := s.loadOwnedApplication(tx, opAddNote, applicationID, userID, false)
		if err != nil {
			return err
		}

		note, err := s.buildNote(application, noteType, content)
		if err != nil {
			return newServiceError(opAddNote, reasonInvalidNote, ErrInvalidInput, err)
		}
		if err := tx.Create(&note).Error; err != nil {
			s.logError(opAddNote, reasonNoteInsertFailed, err,
				zap.String(fieldUserID, userID.String()),
				zap.String(fieldApplicationID, applicationID.String()))
			return newServiceError(opAddNote, reasonNoteInsertFailed, ErrStorageUnavailable, err)
		}

		created = note
		return nil
	})
	if txErr != nil {
		return ApplicationNote{}, txErr
	}
	return created, nil
}

// ListNotes returns the application's notes newest first. An application
// without notes yields an empty slice, not an error.
func (s *Service) ListNotes(ctx context.Context, applicationID ApplicationID, userID UserID) ([]ApplicationNote, error) {
	if err := s.guardDependencies(opListNotes, userID); err != nil {
		return nil, err
	}
	if _, err := s.loadOwnedApplication(s.db.WithContext(ctx), opListNotes, applicationID, userID, false); err != nil {
		return nil, err
	}

	notes := make([]ApplicationNote, 0)
	err := s.db.WithContext(ctx).
		Where("application_id = ?", applicationID.String()).
		Order("created_at_s DESC, note_id DESC").
		Find(&notes).Error
	if err != nil {
		s.logError(opListNotes, reasonQueryFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldApplicationID, applicationID.String()))
		return nil, newServiceError(opListNotes, reasonQueryFailed, ErrStorageUnavailable, err)
	}
	return notes, nil
}

// GetDashboard returns the user's applications alongside the statistics
// rollup computed over them.
func (s *Service) GetDashboard(ctx context.Context, userID UserID) ([]Application, Statistics, error) {
	applications, err := s.ListApplications(ctx, userID)
	if err != nil {
		var serviceErr *ServiceError
		if errors.As(err, &serviceErr) {
			return nil, Statistics{}, newServiceError(opDashboard, reasonQueryFailed, serviceErr.Kind(), serviceErr)
		}
		return nil, Statistics{}, newServiceError(opDashboard, reasonQueryFailed, ErrStorageUnavailable, err)
	}
	return applications, Summarize(applications, s.clock()), nil
}

func (s *Service) buildNote(application Application, rawType, rawContent string) (ApplicationNote, error) {
	noteType, err := ParseNoteType(rawType)
	if err != nil {
		return ApplicationNote{}, err
	}
	content := strings.TrimSpace(rawContent)
	if content == "" {
		return ApplicationNote{}, errEmptyNoteContent
	}
	noteID, err := s.idProvider.NewID()
	if err != nil {
		return ApplicationNote{}, err
	}
	return ApplicationNote{
		NoteID:           noteID,
		ApplicationID:    application.ApplicationID,
		UserID:           application.UserID,
		NoteType:         noteType,
		Content:          content,
		CreatedAtSeconds: s.clock().UTC().Unix(),
	}, nil
}

// guardDependencies rejects calls on a partially constructed service before
// any storage access happens.
func (s *Service) guardDependencies(operation string, userID UserID) error {
	if s.db == nil {
		s.logError(operation, reasonMissingDatabase, errMissingDatabase, zap.String(fieldUserID, userID.String()))
		return newServiceError(operation, reasonMissingDatabase, ErrStorageUnavailable, errMissingDatabase)
	}
	if s.idProvider == nil {
		s.logError(operation, reasonMissingIDProvider, errMissingIDProvider, zap.String(fieldUserID, userID.String()))
		return newServiceError(operation, reasonMissingIDProvider, ErrStorageUnavailable, errMissingIDProvider)
	}
	return nil
}

// loadOwnedApplication fetches the application scoped to the owning user,
// optionally locking the row for update. Rows owned by other users surface as
// not found.
func (s *Service) loadOwnedApplication(tx *gorm.DB, operation string, applicationID ApplicationID, userID UserID, lock bool) (Application, error) {
	query := tx
	if lock {
		query = query.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var application Application
	err := query.Where(queryOwnedApplication, applicationID.String(), userID.String()).Take(&application).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Application{}, newServiceError(operation, reasonNotFound, ErrNotFound, nil)
	}
	if err != nil {
		s.logError(operation, reasonLookupFailed, err,
			zap.String(fieldUserID, userID.String()),
			zap.String(fieldApplicationID, applicationID.String()))
		return Application{}, newServiceError(operation, reasonLookupFailed, ErrStorageUnavailable, err)
	}
	return application, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("tracker service error", attrs...)
}
