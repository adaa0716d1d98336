package server

import (
	contextpkg "context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/careerhub/backend/internal/auth"
	"github.com/careerhub/backend/internal/tracker"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func newHandlerTestContext(t *testing.T, method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	recorder := httptest.NewRecorder()
	ctx, _ := gin.CreateTestContext(recorder)
	ctx.Set(userIDContextKey, "user-1")

	var request *http.Request
	if body == "" {
		request = httptest.NewRequest(method, target, http.NoBody)
	} else {
		request = httptest.NewRequest(method, target, strings.NewReader(body))
		request.Header.Set("Content-Type", "application/json")
	}
	ctx.Request = request
	return ctx, recorder
}

func newBareHandler() *httpHandler {
	return &httpHandler{
		tracker: &tracker.Service{},
		events:  NewChangeDispatcher(),
		logger:  zap.NewNop(),
	}
}

func TestHandleCreateApplicationRejectsEmptyJobID(t *testing.T) {
	ctx, recorder := newHandlerTestContext(t, http.MethodPost, "/applications", `{"job_id":"   "}`)

	newBareHandler().handleCreateApplication(ctx)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	expected := `{"error":"invalid_job_id"}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestHandleCreateApplicationIncludesServiceErrorCode(t *testing.T) {
	ctx, recorder := newHandlerTestContext(t, http.MethodPost, "/applications", `{"job_id":"job-1"}`)

	newBareHandler().handleCreateApplication(ctx)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected service unavailable status, got %d", recorder.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["code"] != "tracker.apply.missing_database" {
		t.Fatalf("expected service error code, got %v", payload["code"])
	}
	if payload["error"] != "storage_unavailable" {
		t.Fatalf("expected storage_unavailable error, got %v", payload["error"])
	}
}

func TestHandleUpdateStatusRejectsMissingStatus(t *testing.T) {
	ctx, recorder := newHandlerTestContext(t, http.MethodPost, "/applications/app-1/status", `{"status":"  "}`)
	ctx.Params = gin.Params{{Key: "id", Value: "app-1"}}

	newBareHandler().handleUpdateStatus(ctx)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	expected := `{"error":"invalid_request"}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestHandleGetApplicationRejectsBlankIdentifier(t *testing.T) {
	ctx, recorder := newHandlerTestContext(t, http.MethodGet, "/applications/%20", "")
	ctx.Params = gin.Params{{Key: "id", Value: "   "}}

	newBareHandler().handleGetApplication(ctx)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
	expected := `{"error":"invalid_application_id"}`
	if recorder.Body.String() != expected {
		t.Fatalf("unexpected response body: %s", recorder.Body.String())
	}
}

func TestHandleListNotesIncludesServiceErrorCode(t *testing.T) {
	ctx, recorder := newHandlerTestContext(t, http.MethodGet, "/applications/app-1/notes", "")
	ctx.Params = gin.Params{{Key: "id", Value: "app-1"}}

	newBareHandler().handleListNotes(ctx)

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected service unavailable status, got %d", recorder.Code)
	}
	var payload map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload["code"] != "tracker.list_notes.missing_database" {
		t.Fatalf("expected list notes error code, got %v", payload["code"])
	}
}

func TestHandleGoogleAuthRejectsMissingToken(t *testing.T) {
	ctx, recorder := newHandlerTestContext(t, http.MethodPost, "/auth/google", `{"id_token":"  "}`)

	handler := &httpHandler{logger: zap.NewNop()}
	handler.handleGoogleAuth(ctx)

	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("expected bad request status, got %d", recorder.Code)
	}
}

func TestHandleGoogleAuthRejectsFailedVerification(t *testing.T) {
	ctx, recorder := newHandlerTestContext(t, http.MethodPost, "/auth/google", `{"id_token":"bad-token"}`)

	handler := &httpHandler{
		verifier: stubVerifier{err: errors.New("verification failed")},
		logger:   zap.NewNop(),
	}
	handler.handleGoogleAuth(ctx)

	if recorder.Code != http.StatusUnauthorized {
		t.Fatalf("expected unauthorized status, got %d", recorder.Code)
	}
}

type stubVerifier struct {
	claims auth.GoogleClaims
	err    error
}

func (s stubVerifier) Verify(contextpkg.Context, string) (auth.GoogleClaims, error) {
	return s.claims, s.err
}

type stubUserResolver struct {
	userID string
	err    error
}

func (s stubUserResolver) ResolveCanonicalUserID(auth.GoogleClaims) (string, error) {
	return s.userID, s.err
}
