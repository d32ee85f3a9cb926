// Package export renders a user's conversations and extracted entities as an
// xlsx workbook.
package export

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"
	"memo-pipeline-go/internal/aggregator"
	"memo-pipeline-go/internal/types"
)

const (
	SheetOverview      = "Overview"
	SheetConversations = "Conversations"
	SheetAppointments  = "Appointments"
	SheetTasks         = "Tasks"
	SheetNotes         = "Notes"
)

const cellTime = "2006-01-02 15:04"

var headers = map[string][]any{
	SheetConversations: {"ID", "Title", "Status", "Recorded", "Duration (s)", "Language", "Favorite", "Summary", "Transcript", "Error"},
	SheetAppointments:  {"Conversation", "Title", "When", "Duration (min)", "Location", "Attendees", "Description", "Confidence"},
	SheetTasks:         {"Conversation", "Title", "Priority", "Due", "Completed", "Description", "Confidence"},
	SheetNotes:         {"Conversation", "Type", "Title", "Content", "Pinned", "Confidence"},
}

// Write builds the workbook and streams it to w.
func Write(w io.Writer, ov aggregator.Overview, details []types.ConversationDetails) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	// the default sheet becomes the overview
	if err := f.SetSheetName("Sheet1", SheetOverview); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	for _, name := range []string{SheetConversations, SheetAppointments, SheetTasks, SheetNotes} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("new sheet %s: %w", name, err)
		}
		if err := writeRow(f, name, 1, headers[name]); err != nil {
			return err
		}
		if err := f.SetRowStyle(name, 1, 1, bold); err != nil {
			return fmt.Errorf("style %s: %w", name, err)
		}
	}

	if err := writeOverview(f, ov, bold); err != nil {
		return err
	}

	sorted := make([]types.ConversationDetails, len(details))
	copy(sorted, details)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].CreatedAt.After(sorted[j].CreatedAt) })

	rows := map[string]int{SheetConversations: 2, SheetAppointments: 2, SheetTasks: 2, SheetNotes: 2}
	next := func(sheet string, values []any) error {
		if err := writeRow(f, sheet, rows[sheet], values); err != nil {
			return err
		}
		rows[sheet]++
		return nil
	}

	for _, d := range sorted {
		if err := next(SheetConversations, []any{
			d.ID, d.Title, d.Status.String(), d.RecordedAt.Format(cellTime), d.AudioDurationSeconds,
			d.TranscriptionLanguage, d.IsFavorite, d.Summary, d.TranscriptionText, d.ProcessingError,
		}); err != nil {
			return err
		}
		for _, a := range d.Appointments {
			if err := next(SheetAppointments, []any{
				d.ID, a.Title, a.At.Format(cellTime), optInt(a.DurationMinutes), a.Location,
				a.AttendeeNames, a.Description, optFloat(a.Confidence),
			}); err != nil {
				return err
			}
		}
		for _, t := range d.Tasks {
			if err := next(SheetTasks, []any{
				d.ID, t.Title, t.Priority, optTime(t.DueDate), t.IsCompleted, t.Description, optFloat(t.Confidence),
			}); err != nil {
				return err
			}
		}
		for _, n := range d.Notes {
			if err := next(SheetNotes, []any{
				d.ID, n.NoteType, n.Title, n.Content, n.IsPinned, optFloat(n.Confidence),
			}); err != nil {
				return err
			}
		}
	}

	_ = f.SetColWidth(SheetConversations, "B", "B", 32)
	_ = f.SetColWidth(SheetConversations, "H", "I", 60)
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeOverview(f *excelize.File, ov aggregator.Overview, bold int) error {
	lines := [][]any{
		{"User", ov.UserID},
		{"Generated", ov.GeneratedAt.Format(cellTime)},
		{"Conversations", ov.TotalConversations},
		{"Favorites", ov.Favorites},
		{"Failure rate", ov.FailureRate},
		{"Audio seconds", ov.TotalAudioSeconds},
		{"Open tasks", ov.OpenTasks},
	}
	for _, s := range sortedKeys(ov.StatusCounts) {
		lines = append(lines, []any{"Status " + s, ov.StatusCounts[s]})
	}
	for i, l := range lines {
		if err := writeRow(f, SheetOverview, i+1, l); err != nil {
			return err
		}
	}
	if err := f.SetColStyle(SheetOverview, "A", bold); err != nil {
		return fmt.Errorf("style overview: %w", err)
	}
	return f.SetColWidth(SheetOverview, "A", "A", 20)
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%s row %d: %w", sheet, row, err)
	}
	return nil
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func optInt(v *int) any {
	if v == nil {
		return ""
	}
	return *v
}

func optFloat(v *float64) any {
	if v == nil {
		return ""
	}
	return *v
}

func optTime(t *time.Time) any {
	if t == nil {
		return ""
	}
	return t.Format(cellTime)
}
