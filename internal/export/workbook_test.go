package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"
	"memo-pipeline-go/internal/aggregator"
	"memo-pipeline-go/internal/types"
)

func TestWriteWorkbook(t *testing.T) {
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	convID := "c1"
	dur := 30
	details := []types.ConversationDetails{
		{
			Conversation: types.Conversation{
				ID: "c1", UserID: "u1", Title: "Arzt", Status: types.StatusCompleted,
				Summary: "Termin", TranscriptionText: "Termin am Montag", RecordedAt: now, CreatedAt: now,
			},
			Appointments: []types.Appointment{{ConversationID: &convID, Title: "Hausarzt", At: now.Add(24 * time.Hour), DurationMinutes: &dur}},
			Tasks:        []types.Task{{ConversationID: &convID, Title: "Rezept", Priority: "High"}},
			Notes:        []types.Note{{ConversationID: &convID, NoteType: "General", Content: "Blutdruck"}},
		},
		{
			Conversation: types.Conversation{
				ID: "c2", UserID: "u1", Title: "Leer", Status: types.StatusFailed,
				ProcessingError: "boom", RecordedAt: now.Add(-time.Hour), CreatedAt: now.Add(-time.Hour),
			},
		},
	}
	ov := aggregator.Aggregate("u1", details, now)

	var buf bytes.Buffer
	if err := Write(&buf, ov, details); err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := excelize.OpenReader(&buf)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer f.Close()

	want := []string{SheetOverview, SheetConversations, SheetAppointments, SheetTasks, SheetNotes}
	got := f.GetSheetList()
	if len(got) != len(want) {
		t.Fatalf("sheets = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sheets = %v, want %v", got, want)
		}
	}

	convRows, err := f.GetRows(SheetConversations)
	if err != nil {
		t.Fatal(err)
	}
	if len(convRows) != 3 {
		t.Fatalf("expected header + 2 conversations, got %d rows", len(convRows))
	}
	if convRows[1][0] != "c1" || convRows[1][2] != "Completed" || convRows[2][9] != "boom" {
		t.Errorf("unexpected conversation rows: %v", convRows)
	}

	apptRows, _ := f.GetRows(SheetAppointments)
	if len(apptRows) != 2 || apptRows[1][1] != "Hausarzt" || apptRows[1][3] != "30" {
		t.Errorf("unexpected appointment rows: %v", apptRows)
	}
	taskRows, _ := f.GetRows(SheetTasks)
	if len(taskRows) != 2 || taskRows[1][2] != "High" {
		t.Errorf("unexpected task rows: %v", taskRows)
	}

	total, err := f.GetCellValue(SheetOverview, "B3")
	if err != nil || total != "2" {
		t.Errorf("overview conversations = %q (%v)", total, err)
	}
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, aggregator.Aggregate("u1", nil, time.Now()), nil); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatal("expected a workbook")
	}
}
