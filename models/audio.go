package models

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// AudioRecord is one ingested audio clip. The embedding is derived from the
// transcription and replaced wholesale whenever the transcription changes;
// it is present iff the transcription is non-empty.
type AudioRecord struct {
	ID            string           `gorm:"primaryKey" json:"id"`
	CreatedAt     time.Time        `json:"created_at"`
	Transcription *string          `json:"transcription,omitempty"`
	Embedding     *pgvector.Vector `gorm:"type:vector(768)" json:"-"`
}

func (AudioRecord) TableName() string { return "audio_records" }

// HasTranscription reports whether a non-empty transcript is present.
func (a *AudioRecord) HasTranscription() bool {
	return a.Transcription != nil && *a.Transcription != ""
}
