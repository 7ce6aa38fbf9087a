package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/tripmates/tripchat/internal/database"
	"github.com/tripmates/tripchat/internal/stats"
)

const (
	metricActiveConnections  = "NumActiveConnections"
	metricMessagesSent       = "NumMessagesSent"
	metricNotificationsSent  = "NumNotificationsSent"
	metricEvictedConnections = "NumEvictedConnections"
)

const DefaultHeartbeatInterval = 30 * time.Second

type stopReq struct {
	done chan struct{}
}

// ChatServer owns the connection registry, runs the heartbeat sweep
// and fans frames out to every connection bound to a trip.
type ChatServer struct {
	log       *log.Logger
	db        database.TripChatRepository
	registry  ConnectionRegistry
	notifier  *Notifier
	stats     stats.StatsProvider
	heartbeat time.Duration
	stop      chan stopReq
}

func NewChatServer(logger *log.Logger, db database.TripChatRepository, registry ConnectionRegistry, statsUpdater stats.StatsProvider, heartbeat time.Duration) (*ChatServer, error) {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}

	if registry == nil {
		registry = NewRegistry()
	}

	cs := &ChatServer{
		log:       logger,
		db:        db,
		registry:  registry,
		stats:     statsUpdater,
		heartbeat: heartbeat,
		stop:      make(chan stopReq),
	}

	cs.notifier = NewNotifier(logger, db, cs, statsUpdater)

	cs.stats.RegisterMetric(metricActiveConnections)
	cs.stats.RegisterMetric(metricMessagesSent)
	cs.stats.RegisterMetric(metricNotificationsSent)
	cs.stats.RegisterMetric(metricEvictedConnections)

	return cs, nil
}

// Run drives the heartbeat loop until Shutdown is called. Connections
// that missed two consecutive sweeps are evicted, the rest are probed
// with a ping.
func (cs *ChatServer) Run() {
	ticker := time.NewTicker(cs.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cs.sweepConnections()
		case req := <-cs.stop:
			cs.closeAllClients()
			close(req.done)
			return
		}
	}
}

func (cs *ChatServer) sweepConnections() {
	dead, probed := cs.registry.Sweep()

	for _, c := range dead {
		cs.log.Printf("evicting unresponsive client %s", c.id)
		cs.evict(c)
	}

	for _, c := range probed {
		c.requestProbe()
	}
}

func (cs *ChatServer) evict(c *Client) {
	if cs.registry.Remove(c) {
		cs.stats.Decr(metricActiveConnections)
	}

	cs.stats.Incr(metricEvictedConnections)
	c.close()
}

func (cs *ChatServer) closeAllClients() {
	for _, c := range cs.registry.All() {
		if cs.registry.Remove(c) {
			cs.stats.Decr(metricActiveConnections)
		}
		c.close()
	}
}

func (cs *ChatServer) RegisterClient(c *Client) {
	cs.registry.Admit(c)
	cs.stats.Incr(metricActiveConnections)
	cs.log.Printf("registered client %s for user %d", c.id, c.user.Id)

	c.queueFrame(NewServerFrame(FrameConnected, ConnectedPayload{Message: "connected"}))
}

func (cs *ChatServer) DeRegisterClient(c *Client) {
	if cs.registry.Remove(c) {
		cs.stats.Decr(metricActiveConnections)
		cs.log.Printf("deregistered client %s", c.id)
	}
}

// BroadcastToTrip encodes the frame once and queues it on every
// connection bound to the trip. Delivery is best effort and unordered,
// a full send buffer drops the frame for that connection only.
func (cs *ChatServer) BroadcastToTrip(tripId int, frame *ServerFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		cs.log.Printf("failed to encode %s frame for trip %d: %s", frame.Type, tripId, err)
		return
	}

	cs.registry.ForEachInTrip(tripId, func(c *Client) {
		c.queueBytes(data)
	})
}

// PublishChatMessage broadcasts a persisted message to its trip and,
// for user authored messages, emits a notification in the background.
func (cs *ChatServer) PublishChatMessage(msg database.ChatMessage, system bool) {
	cs.stats.Incr(metricMessagesSent)
	cs.BroadcastToTrip(msg.TripId, NewServerFrame(FrameChatMessage, wireChatMessage(msg)))

	if !system {
		go cs.notifier.Send(msg.TripId, msg.UserId, ActivityChatMessage, "New Message", msg.Message, "")
	}
}

func (cs *ChatServer) Shutdown(ctx context.Context) error {
	req := stopReq{done: make(chan struct{})}

	select {
	case cs.stop <- req:
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case <-req.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
