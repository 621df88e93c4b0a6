package server

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/orgchat/orgchat/internal/channel"
	"github.com/orgchat/orgchat/internal/stats"
	"github.com/orgchat/orgchat/internal/store"
	"github.com/orgchat/orgchat/internal/types"
)

const (
	// connectWait bounds how long a freshly accepted connection may take to
	// send its user_connect frame.
	connectWait = 10 * time.Second
	// storeTimeout bounds each store round trip made on behalf of a frame.
	storeTimeout = 5 * time.Second
)

// AuthFunc resolves the user_connect frame into a trusted identity. It is
// supplied by the transport layer, which knows whether token verification
// is configured.
type AuthFunc func(frame *ClientFrame) (types.User, error)

// ChatServer owns the session registry and ties together routing, presence
// and persistence for every live connection.
type ChatServer struct {
	log      *zap.Logger
	repo     store.Repository
	registry *SessionRegistry
	stats    stats.StatsProvider
}

func NewChatServer(logger *zap.Logger, repo store.Repository, sp stats.StatsProvider) (*ChatServer, error) {
	cs := &ChatServer{
		log:      logger,
		repo:     repo,
		registry: NewSessionRegistry(),
		stats:    sp,
	}

	for _, metric := range []string{
		stats.NumConnections,
		stats.TotalMessages,
		stats.TotalMarkReads,
		stats.TotalStatusBroadcasts,
	} {
		sp.RegisterMetric(metric)
	}

	return cs, nil
}

// Connect drives the handshake on a newly upgraded connection: read the
// mandatory user_connect frame, resolve the identity, register the
// session, send the initial state and start the pumps. Any handshake
// failure closes the connection without a response body.
func (cs *ChatServer) Connect(conn *websocket.Conn, authenticate AuthFunc) (*Client, error) {
	conn.SetReadDeadline(time.Now().Add(connectWait))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("read connect frame: %w", err)
	}

	var frame ClientFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		conn.Close()
		return nil, fmt.Errorf("parse connect frame: %w", err)
	}
	if frame.Type != FrameUserConnect {
		conn.Close()
		return nil, fmt.Errorf("expected %s frame, got %q", FrameUserConnect, frame.Type)
	}

	user, err := authenticate(&frame)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	c := NewClient(user, conn, cs, cs.log)
	cs.RegisterClient(c)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	c.queueMessage(newInitialStateEvent(cs.InitialState(ctx, user)))

	go c.Write()
	go c.Read()

	return c, nil
}

// RegisterClient installs the session and announces the user online. A
// previous session for the same user is superseded: its pumps are stopped
// here, the single place that closes replaced handles.
func (cs *ChatServer) RegisterClient(c *Client) {
	cs.log.Info("registering session", zap.String("user_id", c.user.Id))

	if prev := cs.registry.Register(c.user.Id, c); prev != nil {
		cs.log.Info("superseding previous session", zap.String("user_id", c.user.Id))
		prev.stopClient()
	}

	cs.stats.Incr(stats.NumConnections)
	cs.broadcastStatus(c.user.Id, StatusOnline)
}

// dropClient stops the session and, if it was still the registered handle
// for the user, announces the user offline. Safe to call more than once
// and from any goroutine; only the first effective removal broadcasts.
func (cs *ChatServer) dropClient(c *Client) {
	c.stopClient()

	if cs.registry.Unregister(c.user.Id, c) {
		cs.log.Info("removing session", zap.String("user_id", c.user.Id))
		cs.stats.Decr(stats.NumConnections)
		cs.broadcastStatus(c.user.Id, StatusOffline)
	}
}

// broadcastStatus delivers a status_update to every session in a fresh
// registry snapshot, the subject included. Delivery failures are isolated:
// the broken session is dropped and the remainder still receive the event.
func (cs *ChatServer) broadcastStatus(userId, status string) {
	event := newStatusUpdate(userId, status)

	for id, target := range cs.registry.Snapshot() {
		if !target.queueMessage(event) {
			cs.log.Warn("status delivery failed, dropping session",
				zap.String("user_id", id))
			cs.dropClient(target)
		}
	}

	cs.stats.Incr(stats.TotalStatusBroadcasts)
}

// handleMessage assigns the authoritative id and timestamp, persists the
// message and fans it out to the resolved recipients. Persistence failure
// is logged but does not stop fan-out: durable storage and in-memory
// delivery are independent best-effort guarantees.
func (cs *ChatServer) handleMessage(c *Client, frame *ClientFrame) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	now := Now()
	msg := types.Message{
		Id:         NewMessageId(now),
		ChannelId:  frame.ChannelId,
		SenderId:   c.user.Id,
		SenderName: c.user.Name,
		SenderRole: c.user.Role,
		Content:    frame.Content,
		Priority:   frame.Priority,
		Timestamp:  now,
	}
	if msg.SenderName == "" {
		msg.SenderName = frame.SenderName
	}
	if msg.Priority == "" {
		msg.Priority = types.PriorityNormal
	}

	if err := cs.repo.SaveMessage(ctx, msg); err != nil {
		cs.log.Error("error saving message",
			zap.String("channel_id", msg.ChannelId), zap.Error(err))
	}
	cs.stats.Incr(stats.TotalMessages)

	cs.fanOut(ctx, msg)
}

// fanOut resolves the channel into a recipient set and delivers the
// message to every recipient with a live session. Recipients without one
// are skipped silently.
func (cs *ChatServer) fanOut(ctx context.Context, msg types.Message) {
	ch := channel.Parse(msg.ChannelId)

	var tree []*types.HierarchyNode
	if ch.Kind == channel.Group {
		var err error
		tree, err = cs.repo.HierarchyTree(ctx)
		if err != nil {
			cs.log.Error("error fetching hierarchy for routing", zap.Error(err))
		}
	}

	snapshot := cs.registry.Snapshot()
	online := make([]string, 0, len(snapshot))
	for id := range snapshot {
		online = append(online, id)
	}

	event := newMessageEvent(msg)
	for id := range channel.Resolve(ch, tree, online, msg.SenderId) {
		target, ok := snapshot[id]
		if !ok {
			continue
		}

		if !target.queueMessage(event) {
			cs.log.Warn("message delivery failed, dropping session",
				zap.String("user_id", id), zap.String("channel_id", msg.ChannelId))
			cs.dropClient(target)
		}
	}
}

// handleMarkRead upserts the sender's read receipt for the channel to now,
// last write wins.
func (cs *ChatServer) handleMarkRead(c *Client, frame *ClientFrame) {
	if frame.ChannelId == "" {
		cs.log.Warn("mark_read with empty channel id", zap.String("user_id", c.user.Id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := cs.repo.SaveReceipt(ctx, c.user.Id, frame.ChannelId, Now()); err != nil {
		cs.log.Error("error saving read receipt",
			zap.String("user_id", c.user.Id),
			zap.String("channel_id", frame.ChannelId), zap.Error(err))
		return
	}

	cs.stats.Incr(stats.TotalMarkReads)
}

// AnnotatedHierarchy returns the persisted tree annotated with the online
// status of each node.
func (cs *ChatServer) AnnotatedHierarchy(ctx context.Context) ([]*types.HierarchyNode, error) {
	tree, err := cs.repo.HierarchyTree(ctx)
	if err != nil {
		return nil, err
	}

	return annotateHierarchy(tree, cs.registry.OnlineIds()), nil
}

// Shutdown stops every live session and waits for the registry to drain.
func (cs *ChatServer) Shutdown(ctx context.Context) error {
	cs.log.Info("stopping sessions", zap.Int("count", cs.registry.Len()))
	for _, c := range cs.registry.Snapshot() {
		cs.dropClient(c)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()
	for cs.registry.Len() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	return nil
}
