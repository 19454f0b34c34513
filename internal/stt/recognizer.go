package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

// ErrEmptyAudio is returned when the uploaded audio has no content.
var ErrEmptyAudio = errors.New("audio payload is empty")

// Task selects between transcription and translation to English.
type Task string

const (
	TaskTranscribe Task = "transcribe"
	TaskTranslate  Task = "translate"
)

// Request describes one recognition job. AudioPath points at a file the
// backend may read for the duration of the call.
type Request struct {
	AudioPath        string
	Filename         string
	Model            string
	Language         string
	Task             Task
	Prompt           string
	Temperature      float64
	Diarize          bool
	MinSpeakers      int
	MaxSpeakers      int
	Align            bool
	HighlightWords   bool
	SuppressNumerals bool
	Hotwords         string
	BatchSize        int
	ChunkSize        int
}

// WithDefaults fills unset fields from the recognizer configuration.
func (r Request) WithDefaults(cfg config.STTConfig) Request {
	if r.Model == "" {
		r.Model = cfg.Model
	}
	if r.Language == "" {
		r.Language = cfg.Language
	}
	if r.Task == "" {
		r.Task = TaskTranscribe
	}
	if r.BatchSize <= 0 {
		r.BatchSize = cfg.BatchSize
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = cfg.ChunkSize
	}
	return r
}

// Recognizer abstracts STT backends.
type Recognizer interface {
	Transcribe(ctx context.Context, req Request) (*transcript.Transcript, error)
}

// New builds the recognizer selected by cfg.Mode.
func New(cfg config.STTConfig, log *slog.Logger) (Recognizer, error) {
	switch cfg.Mode {
	case "", "mock":
		return NewMockRecognizer(), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "http":
		client := NewHTTPRecognizer(cfg.Endpoint, WithTimeout(time.Duration(cfg.TimeoutMS)*time.Millisecond))
		return NewRetryRecognizer(client,
			WithRetryCount(cfg.Retries),
			WithBaseDelay(time.Duration(cfg.RetryBaseMS)*time.Millisecond),
			WithLogger(log),
		), nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
