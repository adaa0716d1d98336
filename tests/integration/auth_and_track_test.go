package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/careerhub/backend/internal/auth"
	"github.com/careerhub/backend/internal/server"
	"github.com/careerhub/backend/internal/tracker"
	"github.com/careerhub/backend/internal/users"
	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	backendSigningSecret = "integration-secret"
	googleSubject        = "google-sub-42"
	jobIdentifier        = "job-42"
	jsonContentType      = "application/json"
)

type staticVerifier struct{}

func (staticVerifier) Verify(_ context.Context, _ string) (auth.GoogleClaims, error) {
	return auth.GoogleClaims{
		Subject:     googleSubject,
		Email:       "candidate@example.com",
		DisplayName: "Integration Candidate",
	}, nil
}

func TestAuthAndTrackFlow(testContext *testing.T) {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:integration_track_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := db.AutoMigrate(&tracker.Application{}, &tracker.ApplicationNote{}, &users.Identity{}); err != nil {
		testContext.Fatalf("failed to migrate: %v", err)
	}

	trackerService, err := tracker.NewService(tracker.ServiceConfig{
		Database:   db,
		IDProvider: tracker.NewUUIDProvider(),
		Logger:     zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build tracker service: %v", err)
	}

	userService, err := users.NewService(users.ServiceConfig{Database: db})
	if err != nil {
		testContext.Fatalf("failed to build user service: %v", err)
	}

	tokenIssuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(backendSigningSecret),
		Issuer:        "careerhub-auth",
		Audience:      "careerhub-api",
		TokenTTL:      time.Minute,
	})
	if err != nil {
		testContext.Fatalf("failed to construct token issuer: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		GoogleVerifier: staticVerifier{},
		TokenManager:   tokenIssuer,
		Users:          userService,
		Tracker:        trackerService,
		Events:         server.NewChangeDispatcher(),
		Logger:         zap.NewNop(),
	})
	if err != nil {
		testContext.Fatalf("failed to build handler: %v", err)
	}

	testServer := httptest.NewServer(handler)
	defer testServer.Close()

	// exchange the (stubbed) Google credential for a backend token.
	authResp := postJSON(testContext, testServer.URL+"/auth/google", "", `{"id_token":"stub-google-token"}`)
	defer authResp.Body.Close()
	if authResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected auth status: %d", authResp.StatusCode)
	}
	var authResult struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.NewDecoder(authResp.Body).Decode(&authResult); err != nil {
		testContext.Fatalf("failed to decode auth response: %v", err)
	}
	if authResult.AccessToken == "" || authResult.TokenType != "Bearer" {
		testContext.Fatalf("unexpected auth payload: %#v", authResult)
	}
	token := authResult.AccessToken

	// unauthenticated access is rejected.
	bareReq, _ := http.NewRequest(http.MethodGet, testServer.URL+"/applications", http.NoBody)
	bareResp, err := http.DefaultClient.Do(bareReq)
	if err != nil {
		testContext.Fatalf("bare request failed: %v", err)
	}
	_ = bareResp.Body.Close()
	if bareResp.StatusCode != http.StatusUnauthorized {
		testContext.Fatalf("expected unauthorized without token, got %d", bareResp.StatusCode)
	}

	// record the application.
	applyResp := postJSON(testContext, testServer.URL+"/applications", token, `{"job_id":"`+jobIdentifier+`"}`)
	defer applyResp.Body.Close()
	if applyResp.StatusCode != http.StatusCreated {
		testContext.Fatalf("unexpected apply status: %d", applyResp.StatusCode)
	}
	var created struct {
		ApplicationID string `json:"application_id"`
		Status        string `json:"status"`
	}
	if err := json.NewDecoder(applyResp.Body).Decode(&created); err != nil {
		testContext.Fatalf("failed to decode apply response: %v", err)
	}
	if created.Status != "Applied" {
		testContext.Fatalf("expected initial status Applied, got %q", created.Status)
	}

	// the duplicate guard rejects a second application to the same job.
	duplicateResp := postJSON(testContext, testServer.URL+"/applications", token, `{"job_id":"`+jobIdentifier+`"}`)
	defer duplicateResp.Body.Close()
	if duplicateResp.StatusCode != http.StatusConflict {
		testContext.Fatalf("expected conflict for duplicate apply, got %d", duplicateResp.StatusCode)
	}
	var duplicateResult struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(duplicateResp.Body).Decode(&duplicateResult); err != nil {
		testContext.Fatalf("failed to decode duplicate response: %v", err)
	}
	if duplicateResult.Code != "tracker.apply.duplicate_application" {
		testContext.Fatalf("unexpected duplicate code: %q", duplicateResult.Code)
	}

	// transition to an interview with a bundled note.
	interviewAt := time.Now().UTC().Add(48 * time.Hour).Format(time.RFC3339)
	statusBody := `{"status":"Interview Scheduled","interview_at":"` + interviewAt + `","note":{"note_type":"interview","content":"Panel with the platform team"}}`
	statusResp := postJSON(testContext, testServer.URL+"/applications/"+created.ApplicationID+"/status", token, statusBody)
	defer statusResp.Body.Close()
	if statusResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected status update response: %d", statusResp.StatusCode)
	}
	var updated struct {
		Status      string  `json:"status"`
		InterviewAt *string `json:"interview_at"`
	}
	if err := json.NewDecoder(statusResp.Body).Decode(&updated); err != nil {
		testContext.Fatalf("failed to decode status response: %v", err)
	}
	if updated.Status != "Interview Scheduled" {
		testContext.Fatalf("unexpected status after transition: %q", updated.Status)
	}
	if updated.InterviewAt == nil || *updated.InterviewAt != interviewAt {
		testContext.Fatalf("unexpected interview timestamp: %v", updated.InterviewAt)
	}

	// the bundled note landed in the ledger.
	notesReq, _ := http.NewRequest(http.MethodGet, testServer.URL+"/applications/"+created.ApplicationID+"/notes", http.NoBody)
	notesReq.Header.Set("Authorization", "Bearer "+token)
	notesResp, err := http.DefaultClient.Do(notesReq)
	if err != nil {
		testContext.Fatalf("notes request failed: %v", err)
	}
	defer notesResp.Body.Close()
	if notesResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected notes status: %d", notesResp.StatusCode)
	}
	var notesResult struct {
		Notes []struct {
			NoteType string `json:"note_type"`
			Content  string `json:"content"`
		} `json:"notes"`
	}
	if err := json.NewDecoder(notesResp.Body).Decode(&notesResult); err != nil {
		testContext.Fatalf("failed to decode notes response: %v", err)
	}
	if len(notesResult.Notes) != 1 {
		testContext.Fatalf("expected one note, got %d", len(notesResult.Notes))
	}
	if notesResult.Notes[0].NoteType != "interview" {
		testContext.Fatalf("unexpected note type: %q", notesResult.Notes[0].NoteType)
	}

	// the dashboard reflects the interview.
	dashReq, _ := http.NewRequest(http.MethodGet, testServer.URL+"/dashboard", http.NoBody)
	dashReq.Header.Set("Authorization", "Bearer "+token)
	dashResp, err := http.DefaultClient.Do(dashReq)
	if err != nil {
		testContext.Fatalf("dashboard request failed: %v", err)
	}
	defer dashResp.Body.Close()
	if dashResp.StatusCode != http.StatusOK {
		testContext.Fatalf("unexpected dashboard status: %d", dashResp.StatusCode)
	}
	var dashboard struct {
		Applications []struct {
			ApplicationID string `json:"application_id"`
		} `json:"applications"`
		Stats struct {
			Total              int `json:"total"`
			Interviews         int `json:"interviews"`
			UpcomingInterviews []struct {
				ApplicationID string `json:"application_id"`
			} `json:"upcoming_interviews"`
		} `json:"stats"`
	}
	if err := json.NewDecoder(dashResp.Body).Decode(&dashboard); err != nil {
		testContext.Fatalf("failed to decode dashboard response: %v", err)
	}
	if dashboard.Stats.Total != 1 || dashboard.Stats.Interviews != 1 {
		testContext.Fatalf("unexpected dashboard counters: %+v", dashboard.Stats)
	}
	if len(dashboard.Stats.UpcomingInterviews) != 1 ||
		dashboard.Stats.UpcomingInterviews[0].ApplicationID != created.ApplicationID {
		testContext.Fatalf("unexpected upcoming interviews: %+v", dashboard.Stats.UpcomingInterviews)
	}

	// the identity record was created during the auth exchange.
	var identity users.Identity
	if err := db.Where("provider = ? AND subject = ?", "google", googleSubject).First(&identity).Error; err != nil {
		testContext.Fatalf("identity record missing: %v", err)
	}
	if identity.Email != "candidate@example.com" {
		testContext.Fatalf("unexpected identity email: %q", identity.Email)
	}
}

func postJSON(testContext *testing.T, url, token, body string) *http.Response {
	testContext.Helper()
	request, err := http.NewRequest(http.MethodPost, url, bytes.NewBufferString(body))
	if err != nil {
		testContext.Fatalf("failed to construct request: %v", err)
	}
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	response, err := http.DefaultClient.Do(request)
	if err != nil {
		testContext.Fatalf("request failed: %v", err)
	}
	return response
}
