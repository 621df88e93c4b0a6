package server

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/orgchat/orgchat/internal/types"
)

// Frame types accepted from clients.
const (
	FrameUserConnect = "user_connect"
	FrameMessage     = "message"
	FrameMarkRead    = "mark_read"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// ClientFrame is the envelope for every inbound frame. Which fields are
// meaningful depends on Type; unknown fields are ignored.
type ClientFrame struct {
	Type string `json:"type"`

	// user_connect
	UserId string     `json:"userId,omitempty"`
	Role   types.Role `json:"role,omitempty"`
	Token  string     `json:"token,omitempty"`

	// message
	ChannelId  string `json:"channelId,omitempty"`
	SenderId   string `json:"senderId,omitempty"`
	SenderName string `json:"senderName,omitempty"`
	Content    string `json:"content,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

type statusPayload struct {
	UserId string `json:"userId"`
	Status string `json:"status"`
}

type statusUpdate struct {
	Type    string        `json:"type"`
	Payload statusPayload `json:"payload"`
}

func newStatusUpdate(userId, status string) *statusUpdate {
	return &statusUpdate{
		Type: "status_update",
		Payload: statusPayload{
			UserId: userId,
			Status: status,
		},
	}
}

// InitialState is the bootstrap payload sent once per connection.
type InitialState struct {
	Hierarchy    []*types.HierarchyNode `json:"hierarchy"`
	Messages     []types.Message        `json:"messages"`
	UnreadCounts map[string]int         `json:"unreadCounts"`
}

type initialStateEvent struct {
	Type    string       `json:"type"`
	Payload InitialState `json:"payload"`
}

func newInitialStateEvent(state InitialState) *initialStateEvent {
	return &initialStateEvent{
		Type:    "initialState",
		Payload: state,
	}
}

// messageEvent flattens the message fields next to the type discriminator,
// the shape clients expect for live messages.
type messageEvent struct {
	Type string `json:"type"`
	types.Message
}

func newMessageEvent(msg types.Message) *messageEvent {
	return &messageEvent{
		Type:    FrameMessage,
		Message: msg,
	}
}

// NewMessageId builds a collision-proof message id from the assigned
// timestamp and a random nonce. Wall clock alone is not unique: two sends
// in the same instant would collide.
func NewMessageId(ts time.Time) string {
	return fmt.Sprintf("msg-%d-%s", ts.UnixNano(), uuid.NewString()[:8])
}

func Now() time.Time {
	return time.Now().UTC().Round(time.Millisecond)
}
