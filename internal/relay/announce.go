package relay

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loqalabs/loqa-scribe/internal/bus"
	"github.com/loqalabs/loqa-scribe/internal/format"
	"github.com/loqalabs/loqa-scribe/internal/protocol"
)

// Role is the node role scribe announces.
const Role = "scribe"

// Announcer advertises this node on the control subjects and keeps it alive
// with periodic heartbeats.
type Announcer struct {
	bus          *bus.Client
	nodeID       string
	capabilities []protocol.Capability
	interval     time.Duration
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Capabilities describes what a scribe node serves.
func Capabilities(sttMode, model string) []protocol.Capability {
	names := make([]string, 0, len(format.All()))
	for _, f := range format.All() {
		names = append(names, string(f))
	}
	return []protocol.Capability{
		{Name: "stt.transcribe", Attributes: map[string]string{"mode": sttMode, "model": model}},
		{Name: "scribe.format", Attributes: map[string]string{
			"subject": protocol.SubjectFormatRequest,
			"formats": strings.Join(names, ","),
		}},
	}
}

func NewAnnouncer(busClient *bus.Client, nodeID string, capabilities []protocol.Capability, interval time.Duration, log *slog.Logger) *Announcer {
	return &Announcer{
		bus:          busClient,
		nodeID:       nodeID,
		capabilities: capabilities,
		interval:     interval,
		log:          log.With(slog.String("component", "announcer")),
	}
}

// Start announces the node and begins heartbeating until Close.
func (a *Announcer) Start(parent context.Context) error {
	if err := a.announce(); err != nil {
		return err
	}
	if a.interval <= 0 {
		return nil
	}
	ctx, cancel := context.WithCancel(parent)
	a.cancel = cancel
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := a.heartbeat(); err != nil {
					a.log.Warn("failed to publish heartbeat", slogError(err))
				}
			}
		}
	}()
	return nil
}

func (a *Announcer) Close() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Announcer) announce() error {
	msg := protocol.NodeAnnounce{
		NodeID:       a.nodeID,
		Role:         Role,
		Capabilities: a.capabilities,
		Timestamp:    time.Now().UTC(),
	}
	if err := a.bus.PublishJSON(protocol.SubjectNodeAnnounce, msg); err != nil {
		return err
	}
	a.log.Info("node announced", slog.String("node_id", a.nodeID), slog.Int("capabilities", len(a.capabilities)))
	return nil
}

func (a *Announcer) heartbeat() error {
	msg := protocol.NodeHeartbeat{NodeID: a.nodeID, Timestamp: time.Now().UTC()}
	return a.bus.PublishJSON(protocol.SubjectNodeHeartbeatPrefix+"."+a.nodeID, msg)
}
