package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/format"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/nats-io/nats.go"
)

// QueueGroup spreads format requests across scribe instances.
const QueueGroup = "scribe-format"

// Service connects the formatter to the bus: it announces finished jobs and
// answers render requests from other services.
type Service struct {
	bus      *bus.Client
	defaults format.Options
	sub      *nats.Subscription
	ready    atomic.Bool
	logger   *slog.Logger
}

func NewService(busClient *bus.Client, defaults format.Options, logger *slog.Logger) *Service {
	return &Service{
		bus:      busClient,
		defaults: defaults,
		logger:   logger.With(slog.String("component", "relay")),
	}
}

func (s *Service) Start() error {
	if s.bus == nil {
		return nil
	}
	sub, err := s.bus.Conn().QueueSubscribe(protocol.SubjectFormatRequest, QueueGroup, s.handleFormat)
	if err != nil {
		return fmt.Errorf("subscribe format requests: %w", err)
	}
	s.sub = sub
	s.ready.Store(true)
	return nil
}

func (s *Service) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
	s.ready.Store(false)
}

func (s *Service) Healthy() bool {
	return s.bus == nil || (s.ready.Load() && s.bus.Healthy())
}

// Completed publishes a finished job. Publishing is best effort; failures
// are logged.
func (s *Service) Completed(evt protocol.TranscriptCompleted) {
	if s == nil || s.bus == nil {
		return
	}
	if err := s.bus.PublishJSON(protocol.SubjectTranscriptCompleted, evt); err != nil {
		s.logger.Warn("failed to publish transcript completion", slog.String("job_id", evt.JobID), slogError(err))
	}
}

func (s *Service) handleFormat(msg *nats.Msg) {
	reply := s.render(msg.Data)
	if msg.Reply == "" {
		return
	}
	data, err := json.Marshal(reply)
	if err != nil {
		s.logger.Warn("failed to marshal format reply", slogError(err))
		return
	}
	if err := msg.Respond(data); err != nil {
		s.logger.Warn("failed to respond to format request", slogError(err))
	}
}

func (s *Service) render(data []byte) protocol.FormatReply {
	var req protocol.FormatRequest
	if err := json.Unmarshal(data, &req); err != nil {
		s.logger.Warn("failed to decode format request", slogError(err))
		return protocol.FormatReply{Error: fmt.Sprintf("decode request: %v", err)}
	}
	if req.Transcript == nil {
		return protocol.FormatReply{Error: "transcript is required"}
	}
	name := req.Format
	if name == "" {
		name = string(format.JSON)
	}
	f, err := format.ParseFormat(name)
	if err != nil {
		return protocol.FormatReply{Error: err.Error()}
	}
	opts := s.defaults
	if req.Options != nil {
		opts = *req.Options
	}
	result, err := format.Render(req.Transcript, f, opts)
	if err != nil {
		if !errors.Is(err, format.ErrUnsupportedFormat) {
			s.logger.Warn("format render failed", slog.String("format", name), slogError(err))
		}
		return protocol.FormatReply{Error: err.Error()}
	}
	return protocol.FormatReply{MediaType: string(result.MediaType), Body: string(result.Body)}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
