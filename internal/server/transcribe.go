package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/auth"
	"github.com/loqalabs/loqa-scribe/internal/format"
	"github.com/loqalabs/loqa-scribe/internal/jobs"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/stt"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// multipart parts above this size are spooled to disk by the parser
const formMemoryBytes = 32 << 20

// transcriptionForm is the parsed multipart request.
type transcriptionForm struct {
	request stt.Request
	format  format.Format
	options format.Options
}

func (s *Server) handleTranscription(task stt.Task) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), "scribe."+string(task),
			trace.WithAttributes(attribute.String("scribe.task", string(task))))
		defer span.End()
		r = r.WithContext(ctx)

		jobID := RequestID(ctx)
		client := auth.ClientFromContext(ctx)
		started := time.Now()

		if s.cfg.HTTP.MaxUploadMB > 0 {
			r.Body = http.MaxBytesReader(w, r.Body, int64(s.cfg.HTTP.MaxUploadMB)<<20)
		}
		if err := r.ParseMultipartForm(formMemoryBytes); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeDetail(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("upload exceeds %d MB", s.cfg.HTTP.MaxUploadMB))
				return
			}
			writeDetail(w, http.StatusBadRequest, "expected a multipart/form-data body")
			return
		}
		defer r.MultipartForm.RemoveAll()

		form, err := s.parseForm(r, task)
		if err != nil {
			writeDetail(w, http.StatusBadRequest, err.Error())
			return
		}
		span.SetAttributes(
			attribute.String("scribe.format", string(form.format)),
			attribute.String("scribe.model", form.request.Model),
		)

		file, header, err := r.FormFile("file")
		if err != nil {
			writeDetail(w, http.StatusBadRequest, "file is required")
			return
		}
		defer file.Close()

		audioPath, size, err := s.spoolUpload(file, header)
		if err != nil {
			if errors.Is(err, stt.ErrEmptyAudio) {
				writeDetail(w, http.StatusBadRequest, "uploaded audio is empty")
				return
			}
			s.logger.Warn("failed to store upload", slog.String("request_id", jobID), slogError(err))
			writeDetail(w, http.StatusBadRequest, "could not read uploaded audio")
			return
		}
		defer os.Remove(audioPath)
		form.request.AudioPath = audioPath
		form.request.Filename = header.Filename
		s.metrics.audioBytes.Add(ctx, size)

		job := jobs.Job{
			ID:         jobID,
			Client:     client,
			Task:       string(task),
			Model:      form.request.Model,
			Language:   form.request.Language,
			Format:     string(form.format),
			AudioBytes: size,
			CreatedAt:  started,
		}

		recognizeStart := time.Now()
		result, err := s.recognizer.Transcribe(ctx, form.request)
		s.metrics.recognizeTime.Record(ctx, time.Since(recognizeStart).Seconds(),
			metric.WithAttributes(attribute.String("scribe.task", string(task))))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "recognition failed")
			s.finish(r, job, started, err)
			if errors.Is(err, stt.ErrEmptyAudio) {
				writeDetail(w, http.StatusBadRequest, "uploaded audio is empty")
				return
			}
			writeDetail(w, http.StatusBadGateway, "transcription failed")
			return
		}

		rendered, err := format.Render(result, form.format, form.options)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "render failed")
			s.finish(r, job, started, err)
			writeDetail(w, http.StatusInternalServerError, "failed to render transcript")
			return
		}

		job.Language = result.Language
		job.Segments = len(result.Segments)
		job.Duration = transcriptDuration(result)
		s.finish(r, job, started, nil)
		if s.notifier != nil {
			s.notifier.Completed(protocol.TranscriptCompleted{
				JobID:     jobID,
				Client:    client,
				Task:      string(task),
				Model:     job.Model,
				Format:    job.Format,
				Language:  result.Language,
				Duration:  job.Duration,
				Segments:  job.Segments,
				Text:      result.Text,
				Timestamp: time.Now().UTC(),
			})
		}

		w.Header().Set("Content-Type", rendered.MediaType.ContentType())
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(rendered.Body)
	}
}

// finish records the job outcome in the history and metrics.
func (s *Server) finish(r *http.Request, job jobs.Job, started time.Time, jobErr error) {
	job.Status = jobs.StatusCompleted
	if jobErr != nil {
		job.Status = jobs.StatusFailed
		job.Error = jobErr.Error()
		s.logger.Warn("transcription failed",
			slog.String("request_id", job.ID),
			slog.String("task", job.Task),
			slogError(jobErr))
	} else {
		s.logger.Info("transcription complete",
			slog.String("request_id", job.ID),
			slog.String("task", job.Task),
			slog.String("format", job.Format),
			slog.Int("segments", job.Segments),
			slog.Duration("latency", time.Since(started)))
	}
	job.ProcessedMS = time.Since(started).Milliseconds()

	s.metrics.transcriptions.Add(r.Context(), 1, metric.WithAttributes(
		attribute.String("scribe.task", job.Task),
		attribute.String("scribe.format", job.Format),
		attribute.String("scribe.status", job.Status),
	))
	if err := s.jobs.Record(r.Context(), job); err != nil {
		s.logger.Warn("failed to record job", slog.String("request_id", job.ID), slogError(err))
	}
}

func transcriptDuration(t *transcript.Transcript) float64 {
	if t.Duration > 0 {
		return t.Duration
	}
	if n := len(t.Segments); n > 0 {
		return t.Segments[n-1].End
	}
	return 0
}

func (s *Server) parseForm(r *http.Request, task stt.Task) (transcriptionForm, error) {
	p := formParser{r: r}
	var form transcriptionForm

	name := p.str("response_format")
	if name == "" {
		name = s.cfg.Format.Default
	}
	f, err := format.ParseFormat(name)
	if err != nil {
		return form, fmt.Errorf("unsupported response_format %q", name)
	}
	form.format = f

	form.options = format.Options{
		MaxLineWidth:      p.integer("max_line_width", s.cfg.Format.MaxLineWidth),
		MaxLineCount:      p.integer("max_line_count", s.cfg.Format.MaxLineCount),
		HighlightWords:    p.flag("highlight_words", s.cfg.Format.HighlightWords),
		IncludeTimestamps: p.flag("include_timestamps", false),
	}

	form.request = stt.Request{
		Model:            s.resolveModel(p.str("model")),
		Language:         p.str("language"),
		Task:             task,
		Prompt:           p.str("prompt"),
		Temperature:      p.number("temperature", 0),
		Diarize:          p.flag("diarize", s.cfg.STT.Diarize),
		MinSpeakers:      p.integer("min_speakers", 0),
		MaxSpeakers:      p.integer("max_speakers", 0),
		Align:            p.flag("align", s.cfg.STT.Align),
		HighlightWords:   form.options.HighlightWords,
		SuppressNumerals: p.flag("suppress_numerals", false),
		Hotwords:         p.str("hotwords"),
		BatchSize:        p.integer("batch_size", 0),
		ChunkSize:        p.integer("chunk_size", 0),
	}.WithDefaults(s.cfg.STT)
	if p.err != nil {
		return form, p.err
	}

	if form.options.MaxLineWidth < 0 || form.options.MaxLineCount < 0 {
		return form, errors.New("max_line_width and max_line_count must be >= 0")
	}
	if form.request.Temperature < 0 || form.request.Temperature > 1 {
		return form, errors.New("temperature must be between 0 and 1")
	}
	if form.request.MinSpeakers > 0 && form.request.MaxSpeakers > 0 && form.request.MinSpeakers > form.request.MaxSpeakers {
		return form, errors.New("min_speakers must not exceed max_speakers")
	}
	return form, nil
}

// resolveModel maps a requested model onto a configured one. Unknown ids,
// such as the generic names OpenAI clients send, fall back to the default.
func (s *Server) resolveModel(requested string) string {
	for _, m := range s.cfg.Models {
		if m.ID == requested {
			return requested
		}
	}
	return s.cfg.STT.Model
}

// spoolUpload copies the uploaded audio to a temporary file. Headerless PCM
// is wrapped in a WAV container on the way.
func (s *Server) spoolUpload(file multipart.File, header *multipart.FileHeader) (string, int64, error) {
	if stt.IsRawPCM(header.Header.Get("Content-Type")) {
		pcm, err := io.ReadAll(file)
		if err != nil {
			return "", 0, fmt.Errorf("read pcm: %w", err)
		}
		path, err := stt.SpoolPCM("", pcm, s.cfg.STT.SampleRate, s.cfg.STT.Channels)
		if err != nil {
			return "", 0, err
		}
		return path, int64(len(pcm)), nil
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	out, err := os.CreateTemp("", "scribe_upload_*"+ext)
	if err != nil {
		return "", 0, fmt.Errorf("temp file: %w", err)
	}
	size, err := io.Copy(out, file)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", 0, fmt.Errorf("copy upload: %w", err)
	}
	if size == 0 {
		os.Remove(out.Name())
		return "", 0, stt.ErrEmptyAudio
	}
	return out.Name(), size, nil
}

// formParser reads typed form values, keeping the first parse error.
type formParser struct {
	r   *http.Request
	err error
}

func (p *formParser) str(key string) string {
	return strings.TrimSpace(p.r.FormValue(key))
}

func (p *formParser) flag(key string, fallback bool) bool {
	v := p.str(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.fail(key, v)
		return fallback
	}
	return b
}

func (p *formParser) integer(key string, fallback int) int {
	v := p.str(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.fail(key, v)
		return fallback
	}
	return n
}

func (p *formParser) number(key string, fallback float64) float64 {
	v := p.str(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		p.fail(key, v)
		return fallback
	}
	return f
}

func (p *formParser) fail(key, value string) {
	if p.err == nil {
		p.err = fmt.Errorf("invalid value %q for %s", value, key)
	}
}
