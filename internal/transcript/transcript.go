package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// UnknownSpeaker labels segments the diarizer did not attribute.
const UnknownSpeaker = "Unknown"

// Word is a single aligned token. Timing is optional: the aligner leaves
// start/end unset for tokens it could not place.
type Word struct {
	Word    string   `json:"word"`
	Start   *float64 `json:"start,omitempty"`
	End     *float64 `json:"end,omitempty"`
	Score   *float64 `json:"score,omitempty"`
	Speaker string   `json:"speaker,omitempty"`
}

// Timed reports whether the word carries a start time.
func (w Word) Timed() bool { return w.Start != nil }

// Segment is one recognizer segment. A nil Words slice means the segment was
// not aligned to word level.
type Segment struct {
	Start   float64 `json:"start"`
	End     float64 `json:"end"`
	Text    string  `json:"text"`
	Speaker string  `json:"speaker,omitempty"`
	Words   []Word  `json:"words,omitempty"`
}

// SpeakerOrDefault returns the segment speaker or UnknownSpeaker.
func (s Segment) SpeakerOrDefault() string {
	if s.Speaker == "" {
		return UnknownSpeaker
	}
	return s.Speaker
}

// Transcript is the record handed from the recognizer to the formatters.
type Transcript struct {
	Text         string
	Language     string
	Duration     float64
	Segments     []Segment
	WordSegments []Word

	// nested records that segments arrived as {"segments": [...], "word_segments": [...]}.
	nested bool
}

// Nested reports whether the transcript uses the aligned-result segment shape.
func (t *Transcript) Nested() bool { return t.nested }

// SetNested selects the segment shape written by MarshalJSON.
func (t *Transcript) SetNested(nested bool) { t.nested = nested }

// Speakers lists distinct speakers in order of first appearance, ignoring
// segments without text.
func (t *Transcript) Speakers() []string {
	seen := make(map[string]struct{})
	var speakers []string
	for _, seg := range t.Segments {
		if strings.TrimSpace(seg.Text) == "" {
			continue
		}
		name := seg.SpeakerOrDefault()
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		speakers = append(speakers, name)
	}
	return speakers
}

// HasWords reports whether the first segment carries word-level timing.
func (t *Transcript) HasWords() bool {
	return len(t.Segments) > 0 && t.Segments[0].Words != nil
}

// Clone returns a deep copy safe to mutate.
func (t *Transcript) Clone() *Transcript {
	out := *t
	out.Segments = make([]Segment, len(t.Segments))
	for i, seg := range t.Segments {
		if seg.Words != nil {
			seg.Words = append([]Word{}, seg.Words...)
		}
		out.Segments[i] = seg
	}
	if t.WordSegments != nil {
		out.WordSegments = append([]Word{}, t.WordSegments...)
	}
	return &out
}

type segmentBlock struct {
	Segments     []Segment `json:"segments"`
	WordSegments []Word    `json:"word_segments,omitempty"`
}

type wireTranscript struct {
	Text     string          `json:"text"`
	Language string          `json:"language,omitempty"`
	Duration float64         `json:"duration,omitempty"`
	Segments json.RawMessage `json:"segments,omitempty"`
}

func (t *Transcript) UnmarshalJSON(data []byte) error {
	var wire wireTranscript
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	*t = Transcript{Text: wire.Text, Language: wire.Language, Duration: wire.Duration}

	raw := bytes.TrimSpace(wire.Segments)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	switch raw[0] {
	case '[':
		if err := json.Unmarshal(raw, &t.Segments); err != nil {
			return fmt.Errorf("decode segments: %w", err)
		}
	case '{':
		var block segmentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			return fmt.Errorf("decode segment block: %w", err)
		}
		t.Segments = block.Segments
		t.WordSegments = block.WordSegments
		t.nested = true
	default:
		return fmt.Errorf("segments must be a list or an object")
	}
	return nil
}

func (t Transcript) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.fields())
}

// Fields returns the transcript as a JSON object map for callers that add
// keys next to the transcript.
func (t *Transcript) Fields() map[string]any {
	return t.fields()
}

func (t Transcript) fields() map[string]any {
	segments := t.Segments
	if segments == nil {
		segments = []Segment{}
	}
	out := map[string]any{"text": t.Text}
	if t.Language != "" {
		out["language"] = t.Language
	}
	if t.Duration != 0 {
		out["duration"] = t.Duration
	}
	if t.nested {
		out["segments"] = segmentBlock{Segments: segments, WordSegments: t.WordSegments}
	} else {
		out["segments"] = segments
	}
	return out
}

// Decode reads a transcript JSON document.
func Decode(r io.Reader) (*Transcript, error) {
	var t Transcript
	dec := json.NewDecoder(r)
	if err := dec.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode transcript: %w", err)
	}
	return &t, nil
}

// Float is a convenience for building optional word timings.
func Float(v float64) *float64 { return &v }
