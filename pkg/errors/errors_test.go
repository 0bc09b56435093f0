package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"testing"
)

func TestAppError_ErrorString(t *testing.T) {
	err := NewUnauthorizedError("token expired")
	want := "UNAUTHORIZED: token expired"
	if err.Error() != want {
		t.Errorf("got %q, want %q", err.Error(), want)
	}
}

func TestAppError_WrapsAndUnwraps(t *testing.T) {
	cause := fmt.Errorf("connection refused")
	err := WrapError(cause, ErrCodeServiceUnavailable, "persistence unreachable", http.StatusServiceUnavailable)

	if !stderrors.Is(err, cause) {
		t.Fatal("wrapped cause lost from the error chain")
	}
	if err.HTTPStatus != http.StatusServiceUnavailable {
		t.Errorf("unexpected http status: %d", err.HTTPStatus)
	}
}

func TestAppError_WithContext(t *testing.T) {
	err := NewNotFoundError("document").WithContext("document_id", "doc-1")
	if err.Context["document_id"] != "doc-1" {
		t.Errorf("context not attached: %v", err.Context)
	}
}

func TestMediaAccessDenied_Code(t *testing.T) {
	err := NewMediaAccessDeniedError("camera unavailable")
	if err.Code != ErrCodeMediaAccessDenied {
		t.Errorf("unexpected code: %s", err.Code)
	}
}

func TestGetAppError(t *testing.T) {
	if GetAppError(nil) != nil {
		t.Error("nil error should yield nil")
	}
	if GetAppError(fmt.Errorf("plain")) != nil {
		t.Error("plain error should yield nil")
	}
	app := NewInternalError("boom")
	if GetAppError(app) != app {
		t.Error("app error not extracted")
	}
	if !IsAppError(app) {
		t.Error("IsAppError should be true for AppError")
	}
}
