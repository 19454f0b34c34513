package relay

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/config"
	"github.com/loqalabs/loqa-scribe/internal/format"
	"github.com/loqalabs/loqa-scribe/internal/natsserver"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
	"github.com/loqalabs/loqa-scribe/internal/transcript"
	"github.com/nats-io/nats.go"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	log := newLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	if err != nil {
		t.Fatalf("start embedded nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	cfg := config.BusConfig{Servers: []string{srv.ClientURL()}, ConnectTimeout: 2000}
	client, err := bus.Connect(context.Background(), cfg, "relay-test", log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func sample() *transcript.Transcript {
	return &transcript.Transcript{
		Text: "Hello there.",
		Segments: []transcript.Segment{
			{Start: 0, End: 1.5, Text: " Hello there.", Speaker: "SPEAKER_00"},
		},
	}
}

func TestFormatResponder(t *testing.T) {
	client := startBus(t)
	svc := NewService(client, format.DefaultOptions(), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(svc.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var reply protocol.FormatReply
	req := protocol.FormatRequest{Transcript: sample(), Format: "md_list"}
	if err := client.RequestJSON(ctx, protocol.SubjectFormatRequest, req, &reply); err != nil {
		t.Fatalf("request: %v", err)
	}
	if reply.Error != "" {
		t.Fatalf("unexpected error reply: %s", reply.Error)
	}
	if reply.MediaType != "text/markdown" || reply.Body != "- **SPEAKER_00**: Hello there." {
		t.Fatalf("unexpected reply %+v", reply)
	}

	reply = protocol.FormatReply{}
	req.Format = "docx"
	if err := client.RequestJSON(ctx, protocol.SubjectFormatRequest, req, &reply); err != nil {
		t.Fatalf("request: %v", err)
	}
	if !strings.Contains(reply.Error, "unsupported format") {
		t.Fatalf("expected unsupported format error, got %+v", reply)
	}
}

func TestCompletedPublishes(t *testing.T) {
	client := startBus(t)
	svc := NewService(client, format.DefaultOptions(), newLogger())

	events := make(chan protocol.TranscriptCompleted, 1)
	sub, err := client.Conn().Subscribe(protocol.SubjectTranscriptCompleted, func(msg *nats.Msg) {
		var evt protocol.TranscriptCompleted
		if err := json.Unmarshal(msg.Data, &evt); err == nil {
			events <- evt
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Unsubscribe()
	if err := client.Conn().Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	svc.Completed(protocol.TranscriptCompleted{JobID: "job-1", Format: "srt", Text: "Hello there."})

	select {
	case evt := <-events:
		if evt.JobID != "job-1" || evt.Format != "srt" {
			t.Fatalf("unexpected event %+v", evt)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for completion event")
	}
}

func TestRenderRejectsMissingTranscript(t *testing.T) {
	svc := NewService(nil, format.DefaultOptions(), newLogger())
	reply := svc.render([]byte(`{"format":"srt"}`))
	if reply.Error != "transcript is required" {
		t.Fatalf("unexpected reply %+v", reply)
	}
	if !svc.Healthy() {
		t.Fatal("service without a bus should report healthy")
	}
}

func TestAnnouncerHeartbeats(t *testing.T) {
	client := startBus(t)

	announces := make(chan protocol.NodeAnnounce, 1)
	beats := make(chan protocol.NodeHeartbeat, 4)
	if _, err := client.Conn().Subscribe(protocol.SubjectNodeAnnounce, func(msg *nats.Msg) {
		var a protocol.NodeAnnounce
		if json.Unmarshal(msg.Data, &a) == nil {
			announces <- a
		}
	}); err != nil {
		t.Fatal(err)
	}
	if _, err := client.Conn().Subscribe(protocol.SubjectNodeHeartbeatPrefix+".scribe-1", func(msg *nats.Msg) {
		var hb protocol.NodeHeartbeat
		if json.Unmarshal(msg.Data, &hb) == nil {
			select {
			case beats <- hb:
			default:
			}
		}
	}); err != nil {
		t.Fatal(err)
	}
	if err := client.Conn().Flush(); err != nil {
		t.Fatal(err)
	}

	a := NewAnnouncer(client, "scribe-1", Capabilities("mock", "large-v3"), 20*time.Millisecond, newLogger())
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer a.Close()

	select {
	case got := <-announces:
		if got.NodeID != "scribe-1" || got.Role != Role || len(got.Capabilities) != 2 {
			t.Fatalf("unexpected announce %+v", got)
		}
		if !strings.Contains(got.Capabilities[1].Attributes["formats"], "md_table") {
			t.Fatalf("format capability missing formats: %+v", got.Capabilities[1])
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for announce")
	}
	select {
	case <-beats:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for heartbeat")
	}
}
