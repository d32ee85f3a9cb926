package aggregator

import (
	"sort"
	"time"

	"memo-pipeline-go/internal/types"
)

// Overview summarizes a user's conversations and what was extracted from them.
type Overview struct {
	UserID               string              `json:"user_id"`
	TotalConversations   int                 `json:"total_conversations"`
	Favorites            int                 `json:"favorites"`
	StatusCounts         map[string]int      `json:"status_counts"`
	FailureRate          float64             `json:"failure_rate"`
	TotalAudioSeconds    int                 `json:"total_audio_seconds"`
	OpenTasks            int                 `json:"open_tasks"`
	TasksByPriority      map[string]int      `json:"tasks_by_priority"`
	NotesByType          map[string]int      `json:"notes_by_type"`
	UpcomingAppointments []types.Appointment `json:"upcoming_appointments"`
	GeneratedAt          time.Time           `json:"generated_at"`
}

// maxUpcoming caps the appointment list in an overview.
const maxUpcoming = 5

func Aggregate(userID string, details []types.ConversationDetails, now time.Time) Overview {
	ov := Overview{
		UserID:               userID,
		StatusCounts:         map[string]int{},
		TasksByPriority:      map[string]int{},
		NotesByType:          map[string]int{},
		UpcomingAppointments: []types.Appointment{},
		GeneratedAt:          now,
	}

	failed := 0
	for _, d := range details {
		if d.IsDeleted {
			continue
		}
		ov.TotalConversations++
		ov.StatusCounts[d.Status.String()]++
		if d.Status == types.StatusFailed {
			failed++
		}
		if d.IsFavorite {
			ov.Favorites++
		}
		ov.TotalAudioSeconds += d.AudioDurationSeconds

		for _, t := range d.Tasks {
			if !t.IsCompleted {
				ov.OpenTasks++
				ov.TasksByPriority[t.Priority]++
			}
		}
		for _, n := range d.Notes {
			ov.NotesByType[n.NoteType]++
		}
		for _, a := range d.Appointments {
			if !a.At.Before(now) {
				ov.UpcomingAppointments = append(ov.UpcomingAppointments, a)
			}
		}
	}

	if ov.TotalConversations > 0 {
		ov.FailureRate = float64(failed) / float64(ov.TotalConversations)
	}

	sort.SliceStable(ov.UpcomingAppointments, func(i, j int) bool {
		return ov.UpcomingAppointments[i].At.Before(ov.UpcomingAppointments[j].At)
	})
	if len(ov.UpcomingAppointments) > maxUpcoming {
		ov.UpcomingAppointments = ov.UpcomingAppointments[:maxUpcoming]
	}
	return ov
}
