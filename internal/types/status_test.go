package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusTranscribing, true},
		{StatusTranscribing, StatusTranscribed, true},
		{StatusTranscribing, StatusFailed, true},
		{StatusTranscribed, StatusAnalyzing, true},
		{StatusAnalyzing, StatusCompleted, true},
		{StatusAnalyzing, StatusFailed, true},
		{StatusFailed, StatusAnalyzing, true},
		{StatusPending, StatusFailed, true},
		{StatusTranscribed, StatusFailed, true},
		{StatusPending, StatusCompleted, false},
		{StatusPending, StatusTranscribed, false},
		{StatusTranscribing, StatusAnalyzing, false},
		{StatusCompleted, StatusAnalyzing, false},
		{StatusCompleted, StatusFailed, false},
		{StatusFailed, StatusFailed, false},
		{StatusFailed, StatusTranscribing, false},
		{StatusAnalyzing, StatusAnalyzing, false},
	}
	for _, tc := range tests {
		err := Transition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Errorf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok && !errors.Is(err, ErrIllegalTransition) {
			t.Errorf("%s -> %s: expected ErrIllegalTransition, got %v", tc.from, tc.to, err)
		}
	}
}

func TestParseStatusRoundTrip(t *testing.T) {
	for s := StatusPending; s <= StatusFailed; s++ {
		got, err := ParseStatus(s.String())
		if err != nil {
			t.Fatalf("ParseStatus(%q): %v", s.String(), err)
		}
		if got != s {
			t.Errorf("ParseStatus(%q) = %v, want %v", s.String(), got, s)
		}
	}
	if _, err := ParseStatus("Archived"); !errors.Is(err, ErrUnknownStatus) {
		t.Errorf("expected ErrUnknownStatus, got %v", err)
	}
}

func TestStatusJSON(t *testing.T) {
	c := Conversation{ID: "c1", Status: StatusTranscribed}
	b, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if m["processing_status"] != "Transcribed" {
		t.Errorf("processing_status = %v, want Transcribed", m["processing_status"])
	}

	var back Conversation
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal into Conversation: %v", err)
	}
	if back.Status != StatusTranscribed {
		t.Errorf("Status = %v, want Transcribed", back.Status)
	}
}

func TestConversationMutators(t *testing.T) {
	now := time.Date(2025, 12, 18, 10, 0, 0, 0, time.UTC)
	c := &Conversation{ID: "c1", Status: StatusPending}

	if err := c.MarkTranscribed(Transcription{Text: "x"}, now); !errors.Is(err, ErrIllegalTransition) {
		t.Fatalf("expected Pending -> Transcribed to be rejected, got %v", err)
	}
	if err := c.Advance(StatusTranscribing, now); err != nil {
		t.Fatal(err)
	}
	if err := c.MarkTranscribed(Transcription{Text: "Termin am Montag", Language: "de"}, now); err != nil {
		t.Fatal(err)
	}
	if c.TranscriptionText != "Termin am Montag" || c.TranscriptionLanguage != "de" {
		t.Errorf("transcript not attached: %+v", c)
	}

	if err := c.MarkFailed("boom", now); err != nil {
		t.Fatal(err)
	}
	if c.ProcessingError != "boom" {
		t.Errorf("ProcessingError = %q", c.ProcessingError)
	}
	if c.ProcessedAt != nil {
		t.Error("ProcessedAt set on failure")
	}

	// retry clears the error
	if err := c.Advance(StatusAnalyzing, now); err != nil {
		t.Fatal(err)
	}
	if c.ProcessingError != "" {
		t.Errorf("ProcessingError should be cleared on retry, got %q", c.ProcessingError)
	}

	later := now.Add(time.Minute)
	if err := c.MarkCompleted(ExtractionResult{Summary: "s", CorrectedTranscript: "Termin am Montag um 9"}, later); err != nil {
		t.Fatal(err)
	}
	if c.Summary != "s" || c.ProcessedAt == nil || !c.ProcessedAt.Equal(later) {
		t.Errorf("completion data missing: %+v", c)
	}
	if c.TranscriptionText != "Termin am Montag um 9" {
		t.Errorf("corrected transcript not applied: %q", c.TranscriptionText)
	}
}

func TestMarkCompletedKeepsTranscriptWithoutCorrection(t *testing.T) {
	c := &Conversation{Status: StatusAnalyzing, TranscriptionText: "original"}
	if err := c.MarkCompleted(ExtractionResult{Summary: "s"}, time.Now()); err != nil {
		t.Fatal(err)
	}
	if c.TranscriptionText != "original" {
		t.Errorf("TranscriptionText = %q, want original", c.TranscriptionText)
	}
}
