package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/careerhub/backend/internal/auth"
	"github.com/careerhub/backend/internal/tracker"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const userIDContextKey = "careerhub_user_id"

var (
	errMissingGoogleVerifier = errors.New("google verifier dependency required")
	errMissingTokenManager   = errors.New("token manager dependency required")
	errMissingUserResolver   = errors.New("user resolver dependency required")
	errMissingTrackerService = errors.New("tracker service dependency required")
	errMissingDispatcher     = errors.New("change dispatcher dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

// GoogleVerifier validates Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, token string) (auth.GoogleClaims, error)
}

// BackendTokenManager issues and validates backend access tokens.
type BackendTokenManager interface {
	IssueBackendToken(ctx context.Context, claims auth.GoogleClaims) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// UserResolver maps verified claims to the canonical user identifier.
type UserResolver interface {
	ResolveCanonicalUserID(claims auth.GoogleClaims) (string, error)
}

// Dependencies wires the HTTP handler to the rest of the backend.
type Dependencies struct {
	GoogleVerifier GoogleVerifier
	TokenManager   BackendTokenManager
	Users          UserResolver
	Tracker        *tracker.Service
	Events         *ChangeDispatcher
	Logger         *zap.Logger
}

// NewHTTPHandler builds the gin router serving the tracking API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.GoogleVerifier == nil {
		return nil, errMissingGoogleVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Users == nil {
		return nil, errMissingUserResolver
	}
	if deps.Tracker == nil {
		return nil, errMissingTrackerService
	}
	if deps.Events == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier: deps.GoogleVerifier,
		tokens:   deps.TokenManager,
		users:    deps.Users,
		tracker:  deps.Tracker,
		events:   deps.Events,
		logger:   logger,
	}

	router.POST("/auth/google", handler.handleGoogleAuth)
	router.GET("/events", handler.handleEventStream)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.POST("/applications", handler.handleCreateApplication)
	protected.GET("/applications", handler.handleListApplications)
	protected.GET("/applications/:id", handler.handleGetApplication)
	protected.POST("/applications/:id/status", handler.handleUpdateStatus)
	protected.PATCH("/applications/:id", handler.handleUpdateDetails)
	protected.POST("/applications/:id/notes", handler.handleAddNote)
	protected.GET("/applications/:id/notes", handler.handleListNotes)
	protected.GET("/dashboard", handler.handleDashboard)

	return router, nil
}

type httpHandler struct {
	verifier GoogleVerifier
	tokens   BackendTokenManager
	users    UserResolver
	tracker  *tracker.Service
	events   *ChangeDispatcher
	logger   *zap.Logger
}

type authRequestPayload struct {
	IDToken string `json:"id_token"`
}

type authResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func (h *httpHandler) handleGoogleAuth(c *gin.Context) {
	var request authRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("google token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	canonicalUserID, err := h.users.ResolveCanonicalUserID(claims)
	if err != nil {
		h.logger.Error("failed to resolve canonical user id", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "identity_resolution_failed"})
		return
	}
	claims.Subject = canonicalUserID

	token, expiresIn, err := h.tokens.IssueBackendToken(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	c.JSON(http.StatusOK, authResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
	})
}

type applicationPayload struct {
	ApplicationID string  `json:"application_id"`
	JobID         string  `json:"job_id"`
	Status        string  `json:"status"`
	AppliedAt     string  `json:"applied_at"`
	InterviewAt   *string `json:"interview_at"`
	FollowUpAt    *string `json:"follow_up_at"`
	ContactPerson string  `json:"contact_person"`
	ContactEmail  string  `json:"contact_email"`
	NotesSummary  string  `json:"notes_summary"`
	CreatedAt     string  `json:"created_at"`
	UpdatedAt     string  `json:"updated_at"`
}

type notePayload struct {
	NoteID        string `json:"note_id"`
	ApplicationID string `json:"application_id"`
	NoteType      string `json:"note_type"`
	Content       string `json:"content"`
	CreatedAt     string `json:"created_at"`
}

type statsPayload struct {
	Total              int                  `json:"total"`
	Applied            int                  `json:"applied"`
	UnderReview        int                  `json:"under_review"`
	Interviews         int                  `json:"interviews"`
	Offers             int                  `json:"offers"`
	Rejected           int                  `json:"rejected"`
	Withdrawn          int                  `json:"withdrawn"`
	UpcomingInterviews []applicationPayload `json:"upcoming_interviews"`
}

type dashboardPayload struct {
	Applications []applicationPayload `json:"applications"`
	Stats        statsPayload         `json:"stats"`
}

type createApplicationPayload struct {
	JobID string `json:"job_id"`
}

type noteDraftPayload struct {
	NoteType string `json:"note_type"`
	Content  string `json:"content"`
}

type statusUpdatePayload struct {
	Status        string            `json:"status"`
	InterviewAt   *string           `json:"interview_at"`
	FollowUpAt    *string           `json:"follow_up_at"`
	ContactPerson *string           `json:"contact_person"`
	ContactEmail  *string           `json:"contact_email"`
	NotesSummary  *string           `json:"notes_summary"`
	Note          *noteDraftPayload `json:"note"`
}

type detailsUpdatePayload struct {
	ContactPerson *string `json:"contact_person"`
	ContactEmail  *string `json:"contact_email"`
	FollowUpAt    *string `json:"follow_up_at"`
	NotesSummary  *string `json:"notes_summary"`
}

type addNotePayload struct {
	NoteType string `json:"note_type"`
	Content  string `json:"content"`
}

func (h *httpHandler) handleCreateApplication(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}

	var request createApplicationPayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	jobID, err := tracker.NewJobID(request.JobID)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_job_id"})
		return
	}

	application, err := h.tracker.Apply(c.Request.Context(), userID, jobID)
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	h.publishChange(userID.String(), application.ApplicationID)
	c.JSON(http.StatusCreated, toApplicationPayload(application))
}

func (h *httpHandler) handleListApplications(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}

	applications, err := h.tracker.ListApplications(c.Request.Context(), userID)
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"applications": toApplicationPayloads(applications)})
}

func (h *httpHandler) handleGetApplication(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	applicationID, ok := h.pathApplicationID(c)
	if !ok {
		return
	}

	application, err := h.tracker.GetApplication(c.Request.Context(), applicationID, userID)
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	c.JSON(http.StatusOK, toApplicationPayload(application))
}

func (h *httpHandler) handleUpdateStatus(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	applicationID, ok := h.pathApplicationID(c)
	if !ok {
		return
	}

	var request statusUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.Status) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	transition := tracker.TransitionRequest{
		Status:        request.Status,
		InterviewAt:   request.InterviewAt,
		FollowUpAt:    request.FollowUpAt,
		ContactPerson: request.ContactPerson,
		ContactEmail:  request.ContactEmail,
		NotesSummary:  request.NotesSummary,
	}
	if request.Note != nil {
		transition.Note = &tracker.NoteDraft{
			Type:    request.Note.NoteType,
			Content: request.Note.Content,
		}
	}

	application, err := h.tracker.UpdateStatus(c.Request.Context(), applicationID, userID, transition)
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	h.publishChange(userID.String(), application.ApplicationID)
	c.JSON(http.StatusOK, toApplicationPayload(application))
}

func (h *httpHandler) handleUpdateDetails(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	applicationID, ok := h.pathApplicationID(c)
	if !ok {
		return
	}

	var request detailsUpdatePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	application, err := h.tracker.UpdateDetails(c.Request.Context(), applicationID, userID, tracker.DetailsPatch{
		ContactPerson: request.ContactPerson,
		ContactEmail:  request.ContactEmail,
		FollowUpAt:    request.FollowUpAt,
		NotesSummary:  request.NotesSummary,
	})
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	h.publishChange(userID.String(), application.ApplicationID)
	c.JSON(http.StatusOK, toApplicationPayload(application))
}

func (h *httpHandler) handleAddNote(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	applicationID, ok := h.pathApplicationID(c)
	if !ok {
		return
	}

	var request addNotePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	note, err := h.tracker.AddNote(c.Request.Context(), applicationID, userID, request.NoteType, request.Content)
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	h.publishChange(userID.String(), note.ApplicationID)
	c.JSON(http.StatusCreated, toNotePayload(note))
}

func (h *httpHandler) handleListNotes(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}
	applicationID, ok := h.pathApplicationID(c)
	if !ok {
		return
	}

	notes, err := h.tracker.ListNotes(c.Request.Context(), applicationID, userID)
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	payloads := make([]notePayload, 0, len(notes))
	for _, note := range notes {
		payloads = append(payloads, toNotePayload(note))
	}
	c.JSON(http.StatusOK, gin.H{"notes": payloads})
}

func (h *httpHandler) handleDashboard(c *gin.Context) {
	userID, ok := h.requestUser(c)
	if !ok {
		return
	}

	applications, stats, err := h.tracker.GetDashboard(c.Request.Context(), userID)
	if err != nil {
		h.respondTrackerError(c, err)
		return
	}

	c.JSON(http.StatusOK, dashboardPayload{
		Applications: toApplicationPayloads(applications),
		Stats: statsPayload{
			Total:              stats.Total,
			Applied:            stats.Applied,
			UnderReview:        stats.UnderReview,
			Interviews:         stats.Interviews,
			Offers:             stats.Offers,
			Rejected:           stats.Rejected,
			Withdrawn:          stats.Withdrawn,
			UpcomingInterviews: toApplicationPayloads(stats.UpcomingInterviews),
		},
	})
}

type changeEventPayload struct {
	ApplicationIDs []string `json:"applicationIds"`
	Source         string   `json:"source"`
	Timestamp      string   `json:"timestamp"`
}

type heartbeatPayload struct {
	Timestamp string `json:"timestamp"`
}

// handleEventStream serves the SSE feed. EventSource cannot set headers, so
// the access token is also accepted as a query parameter.
func (h *httpHandler) handleEventStream(c *gin.Context) {
	token := strings.TrimSpace(c.Query("access_token"))
	if token == "" {
		header := c.GetHeader("Authorization")
		if strings.HasPrefix(header, "Bearer ") {
			token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		}
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming_unsupported"})
		return
	}

	stream, cleanup := h.events.Subscribe(c.Request.Context(), subject)
	defer cleanup()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	writeSSE(c.Writer, eventHeartbeat, heartbeatPayload{Timestamp: time.Now().UTC().Format(time.RFC3339)})
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-c.Request.Context().Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, eventHeartbeat, heartbeatPayload{Timestamp: time.Now().UTC().Format(time.RFC3339)})
			flusher.Flush()
		case message, open := <-stream:
			if !open {
				return
			}
			writeSSE(c.Writer, message.EventType, changeEventPayload{
				ApplicationIDs: message.ApplicationIDs,
				Source:         eventSourceBackend,
				Timestamp:      message.Timestamp.Format(time.RFC3339),
			})
			flusher.Flush()
		}
	}
}

func writeSSE(writer http.ResponseWriter, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(writer, "event: %s\ndata: %s\n\n", eventType, data)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logTokenFailure(err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, subject)
	c.Next()
}

// logTokenFailure keeps expired tokens out of the warning stream: clients
// refresh and retry those on their own.
func (h *httpHandler) logTokenFailure(err error) {
	if errors.Is(err, jwt.ErrTokenExpired) {
		h.logger.Info("token validation failed", zap.Error(err))
		return
	}
	h.logger.Warn("token validation failed", zap.Error(err))
}

func (h *httpHandler) requestUser(c *gin.Context) (tracker.UserID, bool) {
	subject := c.GetString(userIDContextKey)
	userID, err := tracker.NewUserID(subject)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return "", false
	}
	return userID, true
}

func (h *httpHandler) pathApplicationID(c *gin.Context) (tracker.ApplicationID, bool) {
	applicationID, err := tracker.NewApplicationID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_application_id"})
		return "", false
	}
	return applicationID, true
}

func (h *httpHandler) publishChange(userID string, applicationIDs ...string) {
	h.events.Publish(ChangeMessage{
		UserID:         userID,
		EventType:      EventApplicationChanged,
		ApplicationIDs: applicationIDs,
		Timestamp:      time.Now().UTC(),
	})
}

func (h *httpHandler) respondTrackerError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	label := "internal_error"
	switch {
	case errors.Is(err, tracker.ErrDuplicateApplication):
		status, label = http.StatusConflict, "duplicate_application"
	case errors.Is(err, tracker.ErrNotFound):
		status, label = http.StatusNotFound, "not_found"
	case errors.Is(err, tracker.ErrInvalidInput):
		status, label = http.StatusBadRequest, "invalid_request"
	case errors.Is(err, tracker.ErrStorageUnavailable):
		status, label = http.StatusServiceUnavailable, "storage_unavailable"
	}

	response := gin.H{"error": label}
	var serviceErr *tracker.ServiceError
	if errors.As(err, &serviceErr) {
		response["code"] = serviceErr.Code()
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("tracker operation failed", zap.Error(err))
	}
	c.JSON(status, response)
}

func toApplicationPayload(application tracker.Application) applicationPayload {
	return applicationPayload{
		ApplicationID: application.ApplicationID,
		JobID:         application.JobID,
		Status:        string(application.Status),
		AppliedAt:     formatSeconds(application.AppliedAtSeconds),
		InterviewAt:   formatOptionalSeconds(application.InterviewAtSeconds),
		FollowUpAt:    formatOptionalSeconds(application.FollowUpAtSeconds),
		ContactPerson: application.ContactPerson,
		ContactEmail:  application.ContactEmail,
		NotesSummary:  application.NotesSummary,
		CreatedAt:     formatSeconds(application.CreatedAtSeconds),
		UpdatedAt:     formatSeconds(application.UpdatedAtSeconds),
	}
}

func toApplicationPayloads(applications []tracker.Application) []applicationPayload {
	payloads := make([]applicationPayload, 0, len(applications))
	for _, application := range applications {
		payloads = append(payloads, toApplicationPayload(application))
	}
	return payloads
}

func toNotePayload(note tracker.ApplicationNote) notePayload {
	return notePayload{
		NoteID:        note.NoteID,
		ApplicationID: note.ApplicationID,
		NoteType:      string(note.NoteType),
		Content:       note.Content,
		CreatedAt:     formatSeconds(note.CreatedAtSeconds),
	}
}

func formatSeconds(seconds int64) string {
	return time.Unix(seconds, 0).UTC().Format(time.RFC3339)
}

func formatOptionalSeconds(seconds *int64) *string {
	if seconds == nil {
		return nil
	}
	formatted := formatSeconds(*seconds)
	return &formatted
}
