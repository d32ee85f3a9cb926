package types

import "time"

// Advance moves the conversation to status to. Leaving Failed clears the
// recorded error.
func (c *Conversation) Advance(to Status, now time.Time) error {
	if err := Transition(c.Status, to); err != nil {
		return err
	}
	if c.Status == StatusFailed {
		c.ProcessingError = ""
	}
	c.Status = to
	c.UpdatedAt = now
	return nil
}

func (c *Conversation) MarkTranscribed(tr Transcription, now time.Time) error {
	if err := c.Advance(StatusTranscribed, now); err != nil {
		return err
	}
	c.TranscriptionText = tr.Text
	c.TranscriptionLanguage = tr.Language
	return nil
}

// MarkCompleted attaches the extraction summary and sets ProcessedAt.
func (c *Conversation) MarkCompleted(res ExtractionResult, now time.Time) error {
	if err := c.Advance(StatusCompleted, now); err != nil {
		return err
	}
	c.Summary = res.Summary
	if res.CorrectedTranscript != "" {
		c.TranscriptionText = res.CorrectedTranscript
	}
	processed := now
	c.ProcessedAt = &processed
	return nil
}

func (c *Conversation) MarkFailed(msg string, now time.Time) error {
	if err := c.Advance(StatusFailed, now); err != nil {
		return err
	}
	c.ProcessingError = msg
	return nil
}
