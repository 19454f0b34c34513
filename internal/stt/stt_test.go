package stt

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-audio/wav"
	"github.com/google/go-cmp/cmp"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

func writeAudio(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestMockRecognizer(t *testing.T) {
	path := writeAudio(t, make([]byte, 64000))
	rec := NewMockRecognizer()

	got, err := rec.Transcribe(context.Background(), Request{AudioPath: path, Diarize: true, Align: true})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	if len(got.Segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(got.Segments))
	}
	if diff := cmp.Diff([]string{"SPEAKER_00", "SPEAKER_01"}, got.Speakers()); diff != "" {
		t.Fatalf("speakers mismatch (-want +got):\n%s", diff)
	}
	if !got.HasWords() {
		t.Fatal("expected aligned words")
	}
	if got.Segments[1].End != 2 {
		t.Fatalf("expected 2s of audio, got %v", got.Segments[1].End)
	}
}

func TestMockRecognizerEmptyAudio(t *testing.T) {
	path := writeAudio(t, nil)
	_, err := NewMockRecognizer().Transcribe(context.Background(), Request{AudioPath: path})
	if !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
}

func TestBuildArgs(t *testing.T) {
	cfg := config.STTConfig{ComputeType: "int8"}
	req := Request{
		AudioPath:   "/tmp/a.wav",
		Model:       "small",
		Language:    "de",
		Task:        TaskTranslate,
		Diarize:     true,
		MinSpeakers: 2,
		BatchSize:   4,
	}
	want := []string{
		"--audio", "/tmp/a.wav",
		"--model", "small",
		"--language", "de",
		"--task", "translate",
		"--compute_type", "int8",
		"--batch_size", "4",
		"--diarize",
		"--min_speakers", "2",
		"--no_align",
	}
	if diff := cmp.Diff(want, buildArgs(cfg, req)); diff != "" {
		t.Fatalf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestNewExecRecognizerRejectsEmptyCommand(t *testing.T) {
	if _, err := NewExecRecognizer(config.STTConfig{Command: "   "}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestRequestWithDefaults(t *testing.T) {
	cfg := config.STTConfig{Model: "large-v3", Language: "en", BatchSize: 8, ChunkSize: 20}
	got := Request{Model: "tiny"}.WithDefaults(cfg)
	if got.Model != "tiny" || got.Language != "en" || got.Task != TaskTranscribe || got.BatchSize != 8 {
		t.Fatalf("unexpected defaults %+v", got)
	}
}

func TestHTTPRecognizer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/asr" {
			t.Errorf("path = %q, want /asr", r.URL.Path)
		}
		if got := r.URL.Query().Get("language"); got != "fr" {
			t.Errorf("language = %q, want fr", got)
		}
		if got := r.URL.Query().Get("output"); got != "json" {
			t.Errorf("output = %q, want json", got)
		}
		file, header, err := r.FormFile("audio_file")
		if err != nil {
			t.Errorf("form file: %v", err)
			return
		}
		defer file.Close()
		data, _ := io.ReadAll(file)
		if header.Filename != "meeting.mp3" || string(data) != "audio" {
			t.Errorf("unexpected upload %q %q", header.Filename, data)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":" Bonjour.","language":"fr","segments":[{"start":0,"end":1,"text":" Bonjour."}]}`)
	}))
	defer srv.Close()

	rec := NewHTTPRecognizer(srv.URL)
	got, err := rec.Transcribe(context.Background(), Request{
		AudioPath: writeAudio(t, []byte("audio")),
		Filename:  "meeting.mp3",
		Language:  "fr",
	})
	if err != nil {
		t.Fatalf("transcribe: %v", err)
	}
	want := []transcript.Segment{{Start: 0, End: 1, Text: " Bonjour."}}
	if diff := cmp.Diff(want, got.Segments); diff != "" {
		t.Fatalf("segments mismatch (-want +got):\n%s", diff)
	}
}

func TestHTTPRecognizerStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad audio", http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := NewHTTPRecognizer(srv.URL).Transcribe(context.Background(), Request{AudioPath: writeAudio(t, []byte("x"))})
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status error, got %v", err)
	}
}

type scriptedRecognizer struct {
	calls atomic.Int32
	errs  []error
}

func (s *scriptedRecognizer) Transcribe(context.Context, Request) (*transcript.Transcript, error) {
	n := int(s.calls.Add(1)) - 1
	if n < len(s.errs) && s.errs[n] != nil {
		return nil, s.errs[n]
	}
	return &transcript.Transcript{Text: "ok"}, nil
}

func TestRetryRecognizer(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int32
		wantErr   bool
	}{
		{name: "success", wantCalls: 1},
		{name: "retries 5xx", errs: []error{&StatusError{Code: 503}, &StatusError{Code: 502}}, wantCalls: 3},
		{name: "no retry on 4xx", errs: []error{&StatusError{Code: 400}}, wantCalls: 1, wantErr: true},
		{name: "no retry on cancel", errs: []error{context.Canceled}, wantCalls: 1, wantErr: true},
		{
			name:      "gives up",
			errs:      []error{&StatusError{Code: 500}, &StatusError{Code: 500}, &StatusError{Code: 500}},
			wantCalls: 3,
			wantErr:   true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scriptedRecognizer{errs: tt.errs}
			rec := NewRetryRecognizer(next, WithRetryCount(2), WithBaseDelay(time.Millisecond))
			_, err := rec.Transcribe(context.Background(), Request{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got := next.calls.Load(); got != tt.wantCalls {
				t.Fatalf("calls = %d, want %d", got, tt.wantCalls)
			}
		})
	}
}

func TestRetryRecognizerNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rec := NewRetryRecognizer(NewHTTPRecognizer(url), WithRetryCount(1), WithBaseDelay(time.Millisecond))
	_, err := rec.Transcribe(context.Background(), Request{AudioPath: writeAudio(t, []byte("x"))})
	if err == nil || !strings.Contains(err.Error(), "after 1 retries") {
		t.Fatalf("expected exhausted retries, got %v", err)
	}
}

func TestSpoolPCM(t *testing.T) {
	pcm := make([]byte, 3200)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	path, err := SpoolPCM(t.TempDir(), pcm, 16000, 1)
	if err != nil {
		t.Fatalf("spool: %v", err)
	}
	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		t.Fatal("expected a valid wav file")
	}
	if dec.SampleRate != 16000 || dec.NumChans != 1 || dec.BitDepth != 16 {
		t.Fatalf("unexpected header %d/%d/%d", dec.SampleRate, dec.NumChans, dec.BitDepth)
	}
}

func TestSpoolPCMRejectsBadInput(t *testing.T) {
	if _, err := SpoolPCM(t.TempDir(), nil, 16000, 1); !errors.Is(err, ErrEmptyAudio) {
		t.Fatalf("expected ErrEmptyAudio, got %v", err)
	}
	if _, err := SpoolPCM(t.TempDir(), []byte{1, 2, 3}, 16000, 1); err == nil {
		t.Fatal("expected alignment error")
	}
}

func TestIsRawPCM(t *testing.T) {
	for ct, want := range map[string]bool{
		"audio/L16; rate=16000": true,
		"audio/pcm":             true,
		"audio/wav":             false,
		"":                      false,
	} {
		if got := IsRawPCM(ct); got != want {
			t.Errorf("IsRawPCM(%q) = %v, want %v", ct, got, want)
		}
	}
}
