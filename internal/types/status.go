package types

import (
	"errors"
	"fmt"
)

// Status is the processing state of a conversation.
type Status uint8

const (
	StatusPending Status = iota
	StatusTranscribing
	StatusTranscribed
	StatusAnalyzing
	StatusCompleted
	StatusFailed
)

var (
	ErrIllegalTransition = errors.New("illegal status transition")
	ErrUnknownStatus     = errors.New("unknown status")
)

var statusNames = [...]string{
	StatusPending:      "Pending",
	StatusTranscribing: "Transcribing",
	StatusTranscribed:  "Transcribed",
	StatusAnalyzing:    "Analyzing",
	StatusCompleted:    "Completed",
	StatusFailed:       "Failed",
}

// transitions lists every legal move. Failed -> Analyzing is the manual
// extraction retry.
var transitions = map[Status][]Status{
	StatusPending:      {StatusTranscribing, StatusFailed},
	StatusTranscribing: {StatusTranscribed, StatusFailed},
	StatusTranscribed:  {StatusAnalyzing, StatusFailed},
	StatusAnalyzing:    {StatusCompleted, StatusFailed},
	StatusFailed:       {StatusAnalyzing},
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("Status(%d)", uint8(s))
}

func (s Status) Valid() bool { return int(s) < len(statusNames) }

// Terminal reports whether no further automatic transition follows s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseStatus maps a stored status name back to its Status.
func ParseStatus(name string) (Status, error) {
	for i, n := range statusNames {
		if n == name {
			return Status(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownStatus, name)
}

// Transition validates a move from one status to another.
func Transition(from, to Status) error {
	for _, next := range transitions[from] {
		if next == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

func (s Status) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrUnknownStatus, uint8(s))
	}
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
