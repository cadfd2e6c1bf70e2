package apperr

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"testing"
)

func TestUserMessageKeepsDetailsInLog(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	err := fmt.Errorf("fetch clients: %w", Transport("Invalid credentials.", "token rejected with 401", http.StatusUnauthorized))
	got := UserMessage(err, logger)
	if got != "Invalid credentials." {
		t.Fatalf("user message = %q", got)
	}
	if strings.Contains(got, "401") {
		t.Fatalf("technical detail leaked into user message: %q", got)
	}
	if !strings.Contains(buf.String(), "token rejected with 401") {
		t.Fatalf("technical detail missing from log: %s", buf.String())
	}
	if HTTPStatus(err) != http.StatusUnauthorized {
		t.Fatalf("status = %d", HTTPStatus(err))
	}
}

func TestUserMessageUnexpectedError(t *testing.T) {
	got := UserMessage(errors.New("nil pointer somewhere"), nil)
	if got != genericMessage {
		t.Fatalf("got %q", got)
	}
	if HTTPStatus(errors.New("x")) != http.StatusInternalServerError {
		t.Fatal("unexpected status for plain error")
	}
}

func TestCaptureUnwraps(t *testing.T) {
	root := errors.New("png encode failed")
	err := Capture("Could not render report charts.", root)
	if !errors.Is(err, root) {
		t.Fatal("capture error should wrap its cause")
	}
	if !IsKind(err, KindCapture) {
		t.Fatal("kind mismatch")
	}
	if Details(err) != "png encode failed" {
		t.Fatalf("details = %q", Details(err))
	}
}
