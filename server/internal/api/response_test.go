package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/GustavPetterssonBjorklund/Statix/server/internal/repositories"
)

func TestOkWritesStatusAndBody(t *testing.T) {
	rec := httptest.NewRecorder()
	Ok(rec, map[string]any{"hello": "world"})

	if rec.Code != http.StatusOK {
		t.Errorf("Ok() status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Ok() Content-Type = %q, want application/json", ct)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body["hello"] != "world" {
		t.Errorf("Ok() body = %v", body)
	}
}

func TestCreatedStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	Created(rec, map[string]any{})
	if rec.Code != http.StatusCreated {
		t.Errorf("Created() status = %d, want 201", rec.Code)
	}
}

func TestNoContentHasEmptyBody(t *testing.T) {
	rec := httptest.NewRecorder()
	NoContent(rec)
	if rec.Code != http.StatusNoContent {
		t.Errorf("NoContent() status = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("NoContent() body length = %d, want 0", rec.Body.Len())
	}
}

func TestWriteErrorMapsStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, repositories.ErrNotFound)
	if rec.Code != http.StatusNotFound {
		t.Errorf("WriteError(ErrNotFound) status = %d, want 404", rec.Code)
	}

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error == "" {
		t.Error("WriteError() produced an empty error message")
	}
}

func TestWriteErrorHidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteError(rec, errors.New("leaked connection string: postgres://..."))

	var body errorBody
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error != "an internal error occurred" {
		t.Errorf("WriteError() leaked internal detail: %q", body.Error)
	}
}

func TestDecodeJSONRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok","extra":"nope"}`))
	rec := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	if decodeJSON(rec, req, &dst) {
		t.Error("decodeJSON() = true, want false for a body with an unknown field")
	}
	if rec.Code != http.StatusBadRequest {
		t.Errorf("decodeJSON() status = %d, want 400", rec.Code)
	}
}

func TestDecodeJSONAcceptsValidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"ok"}`))
	rec := httptest.NewRecorder()

	var dst struct {
		Name string `json:"name"`
	}
	if !decodeJSON(rec, req, &dst) {
		t.Fatal("decodeJSON() = false, want true for a valid body")
	}
	if dst.Name != "ok" {
		t.Errorf("decodeJSON() Name = %q, want %q", dst.Name, "ok")
	}
}
