package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Environment: "production", Level: "debug", Output: &buf})

	req := httptest.NewRequest("POST", "/conversations", nil)
	req.Header.Set("X-Request-ID", "req-42")
	log.WithRequest(req).WithField("conversation_id", "c1").Info("created")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line, got %q: %v", buf.String(), err)
	}
	if line["req_id"] != "req-42" {
		t.Errorf("req_id = %v", line["req_id"])
	}
	if line["path"] != "/conversations" {
		t.Errorf("path = %v", line["path"])
	}
	if line["conversation_id"] != "c1" {
		t.Errorf("conversation_id = %v", line["conversation_id"])
	}
	if line["service"] != "memo-pipeline" {
		t.Errorf("service = %v", line["service"])
	}
}

func TestWithErrorAddsMessage(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithOptions(Options{Environment: "production", Output: &buf})

	log.WithError(errors.New("upload failed")).Warn("transcription error")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatal(err)
	}
	if line["error"] != "upload failed" {
		t.Errorf("error = %v", line["error"])
	}
	if log.WithError(nil) != log.Entry {
		t.Error("WithError(nil) should return the base entry")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]logrus.Level{
		"debug": logrus.DebugLevel,
		"WARN":  logrus.WarnLevel,
		"error": logrus.ErrorLevel,
		"":      logrus.InfoLevel,
		"bogus": logrus.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
