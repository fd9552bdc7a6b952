package http

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/avdeeva/fieldline/internal/common"
)

func TestWriteError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", common.ValidationError{Field: "status", Message: "bad"}, http.StatusBadRequest},
		{"invalid transition", common.InvalidTransitionError{From: "pending", To: "completed"}, http.StatusConflict},
		{"forbidden", fmt.Errorf("not yours: %w", common.ErrForbidden), http.StatusForbidden},
		{"not found", common.ErrJobNotFound, http.StatusNotFound},
		{"unauthorized", common.ErrInvalidCredentials, http.StatusUnauthorized},
		{"conflict", common.ErrConflict, http.StatusConflict},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			writeError(rec, tc.err)
			if rec.Code != tc.want {
				t.Fatalf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestWriteJSON_SetsContentType(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSON(rec, http.StatusCreated, map[string]string{"id": "1"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("expected application/json, got %q", ct)
	}
	if rec.Body.Len() == 0 {
		t.Fatalf("expected a body")
	}
}
