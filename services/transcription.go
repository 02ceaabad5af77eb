package services

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/phuslu/log"
)

// TranscriptionService wraps an audio-to-text capability. Audio bytes are
// staged to a uniquely named temp file before the capability call so
// concurrent transcriptions never collide; the staged file is removed on
// every exit path.
type TranscriptionService struct {
	transcriber AudioTranscriber
	embedding   *EmbeddingService
	logger      log.Logger
}

// NewTranscriptionService creates a TranscriptionService.
func NewTranscriptionService(transcriber AudioTranscriber, embedding *EmbeddingService, logger log.Logger) *TranscriptionService {
	return &TranscriptionService{transcriber: transcriber, embedding: embedding, logger: logger}
}

// Transcribe returns the transcript of audio, or nil on missing/corrupt
// audio or any capability failure. It never returns an error.
func (s *TranscriptionService) Transcribe(ctx context.Context, audio []byte) *string {
	if len(audio) == 0 {
		return nil
	}

	path := filepath.Join(os.TempDir(), "recall-audio-"+uuid.NewString()+".wav")
	if err := os.WriteFile(path, audio, 0o600); err != nil {
		s.logger.Warn().Err(err).Msg("failed to stage audio for transcription")
		return nil
	}
	defer os.Remove(path)

	text, err := s.transcriber.TranscribeFile(ctx, path)
	if err != nil {
		s.logger.Warn().Err(err).Int("audio_bytes", len(audio)).Msg("transcription failed")
		return nil
	}
	return &text
}

// TranscribeAndEmbed transcribes audio and derives the transcript embedding
// in one pass, as done at ingestion time. The embedding is nil whenever the
// transcript is missing or embedding fails.
func (s *TranscriptionService) TranscribeAndEmbed(ctx context.Context, audio []byte) (*string, []float32) {
	transcript := s.Transcribe(ctx, audio)
	if transcript == nil || *transcript == "" {
		return transcript, nil
	}
	return transcript, s.embedding.Embed(ctx, *transcript)
}
