package types

import (
	"errors"
	"fmt"
	"testing"
)

func TestAppErrorErrorFormat(t *testing.T) {
	appErr := &AppError{
		Code:    ErrCodeNotFoundJob,
		Message: "precompute job not found",
	}

	expected := "not_found_job: precompute job not found"
	if appErr.Error() != expected {
		t.Errorf("Error() = %q, want %q", appErr.Error(), expected)
	}
}

func TestAppErrorUnwrap(t *testing.T) {
	underlying := errors.New("connection reset")
	appErr := NewAppError(ErrCodeInternalDB, "failed to load job", underlying)

	if !errors.Is(appErr, underlying) {
		t.Error("errors.Is should find the wrapped error")
	}

	wrapped := fmt.Errorf("run chunk: %w", appErr)
	var target *AppError
	if !errors.As(wrapped, &target) {
		t.Fatal("errors.As should find AppError in the chain")
	}
	if target.Code != ErrCodeInternalDB {
		t.Errorf("Code = %q, want %q", target.Code, ErrCodeInternalDB)
	}
}

func TestWithDetailsDoesNotMutateOriginal(t *testing.T) {
	orig := NewAppError(ErrCodeConflictConcurrent, "job advanced by another runner", nil)
	orig.Details = map[string]any{"job_id": "j1"}

	withMore := orig.WithDetails(map[string]any{"expected_version": 3})

	if len(orig.Details) != 1 {
		t.Errorf("original details mutated: %v", orig.Details)
	}
	if withMore.Details["job_id"] != "j1" || withMore.Details["expected_version"] != 3 {
		t.Errorf("merged details = %v", withMore.Details)
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(errors.New("plain")); got != "" {
		t.Errorf("CodeOf(plain) = %q, want empty", got)
	}
	err := fmt.Errorf("outer: %w", NewAppError(ErrCodeUpstreamRateLimited, "slow down", nil))
	if got := CodeOf(err); got != ErrCodeUpstreamRateLimited {
		t.Errorf("CodeOf = %q, want %q", got, ErrCodeUpstreamRateLimited)
	}
}

func TestIsPermanentUpstream(t *testing.T) {
	if !IsPermanentUpstream(NewAppError(ErrCodeUpstreamAuthFailed, "bad token", nil)) {
		t.Error("auth failure should be permanent")
	}
	if !IsPermanentUpstream(NewAppError(ErrCodeUpstreamBadResponse, "400", nil)) {
		t.Error("bad response should be permanent")
	}
	if IsPermanentUpstream(NewAppError(ErrCodeUpstreamUnavailable, "503", nil)) {
		t.Error("unavailable should be transient")
	}
	if IsPermanentUpstream(errors.New("plain")) {
		t.Error("plain errors are not permanent upstream failures")
	}
}
