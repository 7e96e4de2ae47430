package cli

import (
	"fmt"
	"strings"
	"testing"

	"resumelift/internal/errors"
)

func TestRemediationHintForMissingAPIKey(t *testing.T) {
	err := errors.NewAuthError(errors.ErrCodeMissingAPIKey,
		"No API key configured. Please add your Gemini API key in settings.", nil)

	hint := remediationHint(err)
	if !strings.Contains(hint, "resumelift apikey set") {
		t.Errorf("expected hint pointing at apikey set, got %q", hint)
	}

	// The hint survives wrapping, since callers wrap before returning.
	wrapped := fmt.Errorf("failed to optimize resume: %w", err)
	if remediationHint(wrapped) != hint {
		t.Errorf("expected same hint for wrapped error")
	}
}

func TestRemediationHintForLoggedOutSession(t *testing.T) {
	err := errors.NewAuthError(errors.ErrCodeNotLoggedIn, "Not logged in.", nil)
	if !strings.Contains(remediationHint(err), "resumelift login") {
		t.Errorf("expected hint pointing at login, got %q", remediationHint(err))
	}
}

func TestNoRemediationHintForOtherErrors(t *testing.T) {
	err := errors.NewServerError(errors.ErrCodeServerError, "boom", nil)
	if hint := remediationHint(err); hint != "" {
		t.Errorf("expected no hint for server errors, got %q", hint)
	}
}
