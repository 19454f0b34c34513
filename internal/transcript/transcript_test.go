package transcript

import (
	"encoding/json"
	"strings"
	"testing"
)

const flatJSON = `{
  "text": "hello there",
  "language": "en",
  "segments": [
    {"start": 0.0, "end": 1.5, "text": " hello", "speaker": "SPEAKER_00"},
    {"start": 1.5, "end": 2.0, "text": " there"}
  ]
}`

const nestedJSON = `{
  "text": "hello there",
  "language": "en",
  "segments": {
    "segments": [
      {"start": 0.0, "end": 1.5, "text": " hello", "words": [
        {"word": "hello", "start": 0.1, "end": 0.9, "score": 0.98}
      ]},
      {"start": 1.5, "end": 2.0, "text": " twelve", "words": [{"word": "12"}]}
    ],
    "word_segments": [{"word": "hello", "start": 0.1, "end": 0.9}]
  }
}`

func TestDecodeFlatSegments(t *testing.T) {
	tr, err := Decode(strings.NewReader(flatJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if tr.Nested() {
		t.Fatal("expected flat shape")
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(tr.Segments))
	}
	if tr.Segments[1].SpeakerOrDefault() != UnknownSpeaker {
		t.Fatalf("expected default speaker, got %q", tr.Segments[1].SpeakerOrDefault())
	}
	if tr.HasWords() {
		t.Fatal("flat transcript should not report words")
	}
}

func TestDecodeNestedSegments(t *testing.T) {
	tr, err := Decode(strings.NewReader(nestedJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !tr.Nested() {
		t.Fatal("expected nested shape")
	}
	if !tr.HasWords() {
		t.Fatal("expected word timings")
	}
	if len(tr.WordSegments) != 1 {
		t.Fatalf("expected word segments, got %d", len(tr.WordSegments))
	}
	if tr.Segments[1].Words[0].Timed() {
		t.Fatal("numeral without start should be untimed")
	}
}

func TestMarshalKeepsShape(t *testing.T) {
	tr, err := Decode(strings.NewReader(nestedJSON))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	data, err := json.Marshal(tr)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var probe struct {
		Segments map[string]json.RawMessage `json:"segments"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		t.Fatalf("expected nested segments object: %v", err)
	}
	if _, ok := probe.Segments["word_segments"]; !ok {
		t.Fatalf("word_segments dropped: %s", data)
	}
}

func TestDecodeRejectsScalarSegments(t *testing.T) {
	if _, err := Decode(strings.NewReader(`{"text": "x", "segments": 3}`)); err == nil {
		t.Fatal("expected error for scalar segments")
	}
}

func TestSpeakersSkipsBlankText(t *testing.T) {
	tr := &Transcript{Segments: []Segment{
		{Text: "hi", Speaker: "B"},
		{Text: "   ", Speaker: "C"},
		{Text: "yo", Speaker: "A"},
		{Text: "again", Speaker: "B"},
		{Text: "who"},
	}}
	got := strings.Join(tr.Speakers(), ",")
	if got != "B,A,Unknown" {
		t.Fatalf("unexpected speakers %q", got)
	}
}

func TestCloneIsIndependent(t *testing.T) {
	tr := &Transcript{Segments: []Segment{{Text: "a", Words: []Word{{Word: "a"}}}}}
	c := tr.Clone()
	c.Segments[0].Words[0].Word = "b"
	if tr.Segments[0].Words[0].Word != "a" {
		t.Fatal("clone shares word storage")
	}
}
