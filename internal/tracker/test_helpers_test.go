package tracker

import "testing"

func mustUserID(t *testing.T, value string) UserID {
	t.Helper()
	id, err := NewUserID(value)
	if err != nil {
		t.Fatalf("unexpected user id error: %v", err)
	}
	return id
}

func mustApplicationID(t *testing.T, value string) ApplicationID {
	t.Helper()
	id, err := NewApplicationID(value)
	if err != nil {
		t.Fatalf("unexpected application id error: %v", err)
	}
	return id
}

func mustJobID(t *testing.T, value string) JobID {
	t.Helper()
	id, err := NewJobID(value)
	if err != nil {
		t.Fatalf("unexpected job id error: %v", err)
	}
	return id
}

func stringPtr(value string) *string {
	return &value
}

func int64Ptr(value int64) *int64 {
	return &value
}
