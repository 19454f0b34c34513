package protocol

import (
	"time"

	"github.com/loqalabs/loqa-scribe/internal/format"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
)

// TranscriptCompleted is broadcast after every successful transcription.
type TranscriptCompleted struct {
	JobID     string    `json:"job_id"`
	Client    string    `json:"client,omitempty"`
	Task      string    `json:"task"`
	Model     string    `json:"model,omitempty"`
	Format    string    `json:"format"`
	Language  string    `json:"language,omitempty"`
	Duration  float64   `json:"duration,omitempty"`
	Segments  int       `json:"segments"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// FormatRequest asks the formatter to render a transcript.
type FormatRequest struct {
	Transcript *transcript.Transcript `json:"transcript"`
	Format     string                 `json:"format"`
	Options    *format.Options        `json:"options,omitempty"`
}

// FormatReply carries either the rendered body or an error.
type FormatReply struct {
	MediaType string `json:"media_type,omitempty"`
	Body      string `json:"body,omitempty"`
	Error     string `json:"error,omitempty"`
}

const (
	SubjectTranscriptCompleted = "scribe.transcript.completed"
	SubjectFormatRequest       = "scribe.format.request"
)

// Capability is one service a node offers on the bus.
type Capability struct {
	Name       string            `json:"name"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// NodeAnnounce introduces a node and its capabilities to the cluster.
type NodeAnnounce struct {
	NodeID       string       `json:"node_id"`
	Role         string       `json:"role"`
	Capabilities []Capability `json:"capabilities"`
	Timestamp    time.Time    `json:"timestamp"`
}

// NodeHeartbeat keeps an announced node marked alive.
type NodeHeartbeat struct {
	NodeID    string    `json:"node_id"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	SubjectNodeAnnounce        = "ctrl.node.announce"
	SubjectNodeHeartbeatPrefix = "ctrl.node.heartbeat"
)
