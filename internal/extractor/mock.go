package extractor

import (
	"context"
	"strings"
	"time"

	"memo-pipeline-go/internal/types"
)

// Mock derives a canned result from the transcript without calling a
// gateway; enabled with USE_MOCK_LLM=true.
type Mock struct {
	Now func() time.Time
}

func (m Mock) Extract(ctx context.Context, req types.ExtractionRequest) (types.ExtractionResult, error) {
	if err := ctx.Err(); err != nil {
		return types.ExtractionResult{}, err
	}
	now := time.Now()
	if m.Now != nil {
		now = m.Now()
	}

	text := strings.TrimSpace(req.TranscriptText)
	summary := text
	if i := strings.IndexAny(text, ".!?"); i > 0 {
		summary = text[:i+1]
	}

	res := types.ExtractionResult{
		Summary:      summary,
		Appointments: []types.Appointment{},
		Tasks:        []types.Task{},
		Notes:        []types.Note{},
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "termin") || strings.Contains(lower, "appointment") {
		at := time.Date(now.Year(), now.Month(), now.Day()+1, 9, 0, 0, 0, now.Location())
		res.Appointments = append(res.Appointments, types.Appointment{Title: "Termin", At: at})
	}
	if strings.Contains(lower, "muss") || strings.Contains(lower, "need to") {
		res.Tasks = append(res.Tasks, types.Task{Title: "Erledigen", Priority: types.DefaultTaskPriority})
	}
	if text != "" {
		res.Notes = append(res.Notes, types.Note{NoteType: types.DefaultNoteType, Content: text})
	}
	return res, nil
}
