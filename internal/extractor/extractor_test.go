package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"memo-pipeline-go/internal/logger"
	"memo-pipeline-go/internal/types"
)

var fixedNow = time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)

const sampleContent = "```json\n" + `{
  "summary": "Arzttermin am Montag.",
  "corrected_transcript": "Ich habe am Montag einen Termin.",
  "appointments": [
    {"title": "Hausarzt", "location": "Praxis", "appointment_datetime": "2025-03-17T09:00", "duration_minutes": 30, "confidence_score": 0.9},
    {"title": "ohne Datum", "appointment_datetime": ""}
  ],
  "tasks": [
    {"title": "Rezept abholen", "due_date": "2025-03-17", "priority": "hoch"},
    {"title": "", "priority": "Low"}
  ],
  "notes": [
    {"note_type": "", "content": "Blutdruck messen"},
    {"note_type": "Medication", "content": ""}
  ]
}` + "\n```"

func chatResponse(content string) []byte {
	b, _ := json.Marshal(map[string]any{
		"choices": []any{
			map[string]any{"message": map[string]any{"role": "assistant", "content": content}},
		},
	})
	return b
}

func newTestClient(url string) *Client {
	c := NewClient(Config{GatewayURL: url, APIKey: "k", Model: "test-model", Timeout: time.Second}, logger.Discard())
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestExtractParsesChatResponse(t *testing.T) {
	var gotBody map[string]any
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if r.Header.Get("Authorization") != "Bearer k" {
			t.Errorf("missing bearer token")
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write(chatResponse(sampleContent))
	}))
	defer srv.Close()

	res, err := newTestClient(srv.URL).Extract(context.Background(), types.ExtractionRequest{TranscriptText: "Termin am Montag", UserID: "u1"})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected one request, got %d", calls)
	}
	if gotBody["model"] != "test-model" || gotBody["user"] != "u1" {
		t.Errorf("unexpected request body: %v", gotBody)
	}

	if res.Summary != "Arzttermin am Montag." || res.CorrectedTranscript != "Ich habe am Montag einen Termin." {
		t.Errorf("unexpected summary/transcript: %+v", res)
	}
	if len(res.Appointments) != 1 {
		t.Fatalf("expected 1 appointment, got %d", len(res.Appointments))
	}
	a := res.Appointments[0]
	if !a.At.Equal(time.Date(2025, 3, 17, 9, 0, 0, 0, time.UTC)) || a.DurationMinutes == nil || *a.DurationMinutes != 30 {
		t.Errorf("unexpected appointment: %+v", a)
	}
	if len(res.Tasks) != 1 || res.Tasks[0].Priority != "High" || res.Tasks[0].DueDate == nil {
		t.Errorf("unexpected tasks: %+v", res.Tasks)
	}
	if len(res.Notes) != 1 || res.Notes[0].NoteType != types.DefaultNoteType {
		t.Errorf("unexpected notes: %+v", res.Notes)
	}
}

func TestExtractGatewayErrorIsNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Extract(context.Background(), types.ExtractionRequest{TranscriptText: "x"})
	if !errors.Is(err, ErrExtraction) || !strings.Contains(err.Error(), "503") {
		t.Fatalf("expected 503 extraction error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected exactly one attempt, got %d", calls)
	}
}

func TestExtractMalformedOutput(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(chatResponse("I could not find anything useful."))
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Extract(context.Background(), types.ExtractionRequest{TranscriptText: "x"})
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestExtractNotConfigured(t *testing.T) {
	_, err := NewClient(Config{}, logger.Discard()).Extract(context.Background(), types.ExtractionRequest{})
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("expected ErrExtraction, got %v", err)
	}
}

func TestParseBareObject(t *testing.T) {
	res, err := Parse([]byte(`noise {"summary":"kurz","tasks":[{"title":"a","priority":"weird"}]} trailing`), fixedNow)
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary != "kurz" || len(res.Tasks) != 1 || res.Tasks[0].Priority != types.DefaultTaskPriority {
		t.Errorf("unexpected result: %+v", res)
	}
	if res.Appointments == nil || res.Notes == nil {
		t.Errorf("empty collections should be non-nil")
	}
}

func TestParseRejectsEnvelopeAndForeignObjects(t *testing.T) {
	cases := map[string][]byte{
		"envelope without JSON content": chatResponse("I could not find anything useful."),
		"envelope with empty choices":   []byte(`{"choices":[]}`),
		"content without known fields":  chatResponse(`{"answer":"nichts"}`),
		"bare foreign object":           []byte(`{"foo":1}`),
		"no JSON at all":                []byte("internal error"),
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse(body, fixedNow); !errors.Is(err, ErrExtraction) {
				t.Errorf("expected ErrExtraction, got %v", err)
			}
		})
	}
}

func TestExtractJSONHandlesBracesInStrings(t *testing.T) {
	got := extractJSON(`x {"a":"}{","b":{"c":1}} y`)
	if got != `{"a":"}{","b":{"c":1}}` {
		t.Errorf("extractJSON = %q", got)
	}
	if extractJSON("no json") != "" {
		t.Errorf("expected empty result")
	}
}

func TestMockExtract(t *testing.T) {
	m := Mock{Now: func() time.Time { return fixedNow }}
	res, err := m.Extract(context.Background(), types.ExtractionRequest{TranscriptText: "Termin beim Arzt. Ich muss Tabletten holen."})
	if err != nil {
		t.Fatal(err)
	}
	if res.Summary != "Termin beim Arzt." || len(res.Appointments) != 1 || len(res.Tasks) != 1 || len(res.Notes) != 1 {
		t.Errorf("unexpected mock result: %+v", res)
	}
}
