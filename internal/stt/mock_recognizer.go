package stt

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

type mockRecognizer struct{}

// NewMockRecognizer returns a recognizer producing a fixed two-speaker
// conversation whose timing scales with the audio size.
func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(ctx context.Context, req Request) (*transcript.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("stat audio: %w", err)
	}
	if info.Size() == 0 {
		return nil, ErrEmptyAudio
	}

	// 16 kHz mono 16-bit PCM runs 32000 bytes per second.
	duration := float64(info.Size()) / 32000
	if duration < 2 {
		duration = 2
	}
	mid := duration / 2

	first := segment(0, mid, " Hello there.", speakerFor(req, "SPEAKER_00"), req.Align)
	second := segment(mid, duration, " Hi, how are you?", speakerFor(req, "SPEAKER_01"), req.Align)
	language := req.Language
	if language == "" {
		language = "en"
	}
	out := &transcript.Transcript{
		Text:     "Hello there. Hi, how are you?",
		Language: language,
		Duration: duration,
		Segments: []transcript.Segment{first, second},
	}
	if req.Task == TaskTranslate {
		out.Language = "en"
	}
	return out, nil
}

func speakerFor(req Request, name string) string {
	if !req.Diarize {
		return ""
	}
	return name
}

func segment(start, end float64, text, speaker string, align bool) transcript.Segment {
	seg := transcript.Segment{Start: start, End: end, Text: text, Speaker: speaker}
	if !align {
		return seg
	}
	words := strings.Fields(text)
	step := (end - start) / float64(len(words))
	for i, w := range words {
		ws := start + step*float64(i)
		seg.Words = append(seg.Words, transcript.Word{
			Word:    w,
			Start:   transcript.Float(ws),
			End:     transcript.Float(ws + step),
			Score:   transcript.Float(0.9),
			Speaker: speaker,
		})
	}
	return seg
}
