package extractor

import (
	"strings"
	"time"

	"memo-pipeline-go/internal/types"
)

// extractionPayload mirrors the JSON schema requested in BuildPrompt.
type extractionPayload struct {
	Summary             string `json:"summary"`
	CorrectedTranscript string `json:"corrected_transcript"`
	Appointments        []struct {
		Title           string   `json:"title"`
		Description     string   `json:"description"`
		Location        string   `json:"location"`
		DateTime        string   `json:"appointment_datetime"`
		DurationMinutes *int     `json:"duration_minutes"`
		AttendeeNames   string   `json:"attendee_names"`
		Confidence      *float64 `json:"confidence_score"`
	} `json:"appointments"`
	Tasks []struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		DueDate     string   `json:"due_date"`
		Priority    string   `json:"priority"`
		Confidence  *float64 `json:"confidence_score"`
	} `json:"tasks"`
	Notes []struct {
		NoteType   string   `json:"note_type"`
		Title      string   `json:"title"`
		Content    string   `json:"content"`
		Confidence *float64 `json:"confidence_score"`
	} `json:"notes"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
	"02.01.2006 15:04",
	"02.01.2006",
}

// parseDate accepts the date shapes LLMs tend to produce. Zone-less values
// are read in loc.
func parseDate(s string, loc *time.Location) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func normalizePriority(p string) string {
	switch strings.ToLower(strings.TrimSpace(p)) {
	case "low", "niedrig":
		return "Low"
	case "high", "hoch", "urgent", "dringend":
		return "High"
	default:
		return types.DefaultTaskPriority
	}
}

// toResult converts the payload into domain types. Ids, owners and
// timestamps are left for the pipeline to stamp.
func (p extractionPayload) toResult(now time.Time) types.ExtractionResult {
	res := types.ExtractionResult{
		Summary:             strings.TrimSpace(p.Summary),
		CorrectedTranscript: strings.TrimSpace(p.CorrectedTranscript),
		Appointments:        []types.Appointment{},
		Tasks:               []types.Task{},
		Notes:               []types.Note{},
	}

	for _, a := range p.Appointments {
		if strings.TrimSpace(a.Title) == "" {
			continue
		}
		at, ok := parseDate(a.DateTime, now.Location())
		if !ok {
			// an appointment without a date cannot be placed on the calendar
			continue
		}
		res.Appointments = append(res.Appointments, types.Appointment{
			Title:           a.Title,
			Description:     a.Description,
			Location:        a.Location,
			At:              at,
			DurationMinutes: positiveOrNil(a.DurationMinutes),
			AttendeeNames:   a.AttendeeNames,
			Confidence:      a.Confidence,
		})
	}

	for _, t := range p.Tasks {
		if strings.TrimSpace(t.Title) == "" {
			continue
		}
		task := types.Task{
			Title:       t.Title,
			Description: t.Description,
			Priority:    normalizePriority(t.Priority),
			Confidence:  t.Confidence,
		}
		if due, ok := parseDate(t.DueDate, now.Location()); ok {
			task.DueDate = &due
		}
		res.Tasks = append(res.Tasks, task)
	}

	for _, n := range p.Notes {
		if strings.TrimSpace(n.Content) == "" {
			continue
		}
		noteType := strings.TrimSpace(n.NoteType)
		if noteType == "" {
			noteType = types.DefaultNoteType
		}
		res.Notes = append(res.Notes, types.Note{
			NoteType:   noteType,
			Title:      n.Title,
			Content:    n.Content,
			Confidence: n.Confidence,
		})
	}
	return res
}

func positiveOrNil(v *int) *int {
	if v == nil || *v <= 0 {
		return nil
	}
	return v
}
