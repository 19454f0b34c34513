package stt

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

// DefaultTimeout bounds one upstream request.
const DefaultTimeout = 10 * time.Minute

// StatusError is returned when the upstream service answers with a non-200
// status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream asr error: status %d: %s", e.Code, e.Body)
}

// HTTPRecognizer posts audio to an ASR webservice exposing POST /asr with
// JSON output.
type HTTPRecognizer struct {
	baseURL    string
	httpClient *http.Client
}

// HTTPOption configures the HTTPRecognizer.
type HTTPOption func(*HTTPRecognizer)

// WithTimeout sets the HTTP request timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(r *HTTPRecognizer) {
		if d > 0 {
			r.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(r *HTTPRecognizer) {
		r.httpClient = client
	}
}

func NewHTTPRecognizer(baseURL string, opts ...HTTPOption) *HTTPRecognizer {
	r := &HTTPRecognizer{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *HTTPRecognizer) Transcribe(ctx context.Context, req Request) (*transcript.Transcript, error) {
	file, err := os.Open(req.AudioPath)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer file.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	name := req.Filename
	if name == "" {
		name = filepath.Base(req.AudioPath)
	}
	part, err := writer.CreateFormFile("audio_file", name)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, file); err != nil {
		return nil, fmt.Errorf("copy audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	reqURL, err := r.buildURL(req)
	if err != nil {
		return nil, fmt.Errorf("build URL: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, &buf)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", writer.FormDataContentType())
	httpReq.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	result, err := transcript.Decode(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse JSON response: %w", err)
	}
	return result, nil
}

func (r *HTTPRecognizer) buildURL(req Request) (string, error) {
	u, err := url.Parse(r.baseURL)
	if err != nil {
		return "", err
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/asr"
	}

	q := u.Query()
	q.Set("output", "json")
	q.Set("encode", "true")
	if req.Task != "" {
		q.Set("task", string(req.Task))
	}
	if req.Language != "" && req.Language != "auto" {
		q.Set("language", req.Language)
	}
	if req.Prompt != "" {
		q.Set("initial_prompt", req.Prompt)
	}
	if req.Align {
		q.Set("word_timestamps", "true")
	}
	if req.Diarize {
		q.Set("diarize", "true")
		if req.MinSpeakers > 0 {
			q.Set("min_speakers", strconv.Itoa(req.MinSpeakers))
		}
		if req.MaxSpeakers > 0 {
			q.Set("max_speakers", strconv.Itoa(req.MaxSpeakers))
		}
	}
	if req.Hotwords != "" {
		q.Set("hotwords", req.Hotwords)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}
