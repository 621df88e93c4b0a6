package server

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/orgchat/orgchat/internal/channel"
	"github.com/orgchat/orgchat/internal/stats"
	"github.com/orgchat/orgchat/internal/store"
	"github.com/orgchat/orgchat/internal/testutil"
	"github.com/orgchat/orgchat/internal/types"
)

// newTestChatServer creates a ChatServer with a permissive stats mock.
func newTestChatServer(t *testing.T, repo store.Repository) *ChatServer {
	su := &stats.MockStatsProvider{}
	su.On("RegisterMetric", mock.Anything).Times(4)
	su.On("Incr", mock.Anything).Maybe()
	su.On("Decr", mock.Anything).Maybe()

	cs, err := NewChatServer(testutil.TestLogger(t), repo, su)
	require.NoError(t, err, "failed to create test ChatServer")
	return cs
}

// newTestClient builds a client without a live connection and installs it
// directly in the registry, bypassing the online broadcast.
func newTestClient(t *testing.T, cs *ChatServer, user types.User) *Client {
	c := NewClient(user, nil, cs, testutil.TestLogger(t))
	cs.registry.Register(user.Id, c)
	return c
}

// queuedEvents drains everything currently buffered for the client.
func queuedEvents(c *Client) []any {
	var events []any
	for {
		select {
		case e := <-c.send:
			events = append(events, e)
		default:
			return events
		}
	}
}

func statusEvents(events []any, userId, status string) int {
	count := 0
	for _, e := range events {
		if su, ok := e.(*statusUpdate); ok && su.Payload.UserId == userId && su.Payload.Status == status {
			count++
		}
	}
	return count
}

func messageEvents(events []any) []*messageEvent {
	var messages []*messageEvent
	for _, e := range events {
		if me, ok := e.(*messageEvent); ok {
			messages = append(messages, me)
		}
	}
	return messages
}

func TestRegisterClientBroadcastsOnline(t *testing.T) {
	cs := newTestChatServer(t, &store.MockRepository{})

	observer := newTestClient(t, cs, types.User{Id: "dir-1", Role: types.RoleDirector})
	joining := NewClient(types.User{Id: "mgr-1", Role: types.RoleManager}, nil, cs, testutil.TestLogger(t))

	cs.RegisterClient(joining)

	assert.Equal(t, 2, cs.registry.Len())
	assert.Equal(t, 1, statusEvents(queuedEvents(observer), "mgr-1", StatusOnline),
		"expected the observer to see mgr-1 come online")
	assert.Equal(t, 1, statusEvents(queuedEvents(joining), "mgr-1", StatusOnline),
		"expected the subject to receive its own status update")
}

func TestRegisterClientSupersedes(t *testing.T) {
	cs := newTestChatServer(t, &store.MockRepository{})

	first := NewClient(types.User{Id: "sup-1", Role: types.RoleSupervisor}, nil, cs, testutil.TestLogger(t))
	second := NewClient(types.User{Id: "sup-1", Role: types.RoleSupervisor}, nil, cs, testutil.TestLogger(t))

	cs.RegisterClient(first)
	cs.RegisterClient(second)

	select {
	case <-first.stop:
	default:
		t.Error("expected the replaced session to be stopped")
	}
	assert.Equal(t, 1, cs.registry.Len(), "expected one session per user")
	assert.Equal(t, second, cs.registry.Snapshot()["sup-1"], "expected the new handle to win")

	// The stale session's disconnect must not evict or re-announce.
	cs.dropClient(first)
	assert.Equal(t, 1, cs.registry.Len())
	assert.Equal(t, 0, statusEvents(queuedEvents(second), "sup-1", StatusOffline),
		"expected no offline broadcast for a superseded handle")
}

func TestDropClientBroadcastsOfflineOnce(t *testing.T) {
	cs := newTestChatServer(t, &store.MockRepository{})

	observer := newTestClient(t, cs, types.User{Id: "dir-1", Role: types.RoleDirector})
	leaving := newTestClient(t, cs, types.User{Id: "emp-1", Role: types.RoleEmployee})

	cs.dropClient(leaving)
	cs.dropClient(leaving)

	assert.Equal(t, 1, statusEvents(queuedEvents(observer), "emp-1", StatusOffline),
		"expected exactly one offline broadcast")
	assert.Equal(t, 1, cs.registry.Len())
}

func testHierarchy() []*types.HierarchyNode {
	return []*types.HierarchyNode{{
		Id: "dir-1", Role: types.RoleDirector,
		Children: []*types.HierarchyNode{{
			Id: "mgr-1", Role: types.RoleManager,
			Children: []*types.HierarchyNode{{
				Id: "sup-1", Role: types.RoleSupervisor,
				Children: []*types.HierarchyNode{{
					Id: "emp-1", Role: types.RoleEmployee,
				}},
			}},
		}},
	}}
}

func TestHandleMessageGroupFanOut(t *testing.T) {
	repo := &store.MockRepository{}
	defer repo.AssertExpectations(t)

	repo.On("SaveMessage", mock.Anything, mock.MatchedBy(func(msg types.Message) bool {
		return msg.Id != "" && !msg.Timestamp.IsZero() &&
			msg.ChannelId == "group-managers" && msg.SenderId == "sup-1"
	})).Return(nil).Once()
	repo.On("HierarchyTree", mock.Anything).Return(testHierarchy(), nil).Once()

	cs := newTestChatServer(t, repo)

	mgr := newTestClient(t, cs, types.User{Id: "mgr-1", Role: types.RoleManager})
	sup := newTestClient(t, cs, types.User{Id: "sup-1", Name: "Sam", Role: types.RoleSupervisor})

	// dir-1 resolves as a recipient but has no session: skipped silently.
	cs.handleMessage(sup, &ClientFrame{
		Type:      FrameMessage,
		ChannelId: "group-managers",
		Content:   "status update please",
	})

	for _, c := range []*Client{mgr, sup} {
		delivered := messageEvents(queuedEvents(c))
		require.Len(t, delivered, 1, "expected one message for %s", c.user.Id)
		assert.Equal(t, "group-managers", delivered[0].ChannelId)
		assert.Equal(t, "sup-1", delivered[0].SenderId)
		assert.Equal(t, "Sam", delivered[0].SenderName)
		assert.Equal(t, types.RoleSupervisor, delivered[0].SenderRole)
		assert.Equal(t, "status update please", delivered[0].Content)
		assert.Equal(t, types.PriorityNormal, delivered[0].Priority, "expected the default priority")
	}
}

func TestHandleMessagePrivateDelivery(t *testing.T) {
	repo := &store.MockRepository{}
	defer repo.AssertExpectations(t)
	repo.On("SaveMessage", mock.Anything, mock.Anything).Return(nil).Once()

	cs := newTestChatServer(t, repo)

	dir := newTestClient(t, cs, types.User{Id: "dir-1", Role: types.RoleDirector})
	mgr := newTestClient(t, cs, types.User{Id: "mgr-1", Role: types.RoleManager})

	cs.handleMessage(dir, &ClientFrame{
		Type:      FrameMessage,
		ChannelId: "private-dir-1-mgr-1",
		Content:   "got a minute?",
		Priority:  types.PriorityUrgent,
	})

	for _, c := range []*Client{dir, mgr} {
		delivered := messageEvents(queuedEvents(c))
		require.Len(t, delivered, 1, "expected the private message for %s", c.user.Id)
		assert.Equal(t, types.PriorityUrgent, delivered[0].Priority)
	}
}

func TestHandleMessagePersistFailureStillFansOut(t *testing.T) {
	repo := &store.MockRepository{}
	defer repo.AssertExpectations(t)
	repo.On("SaveMessage", mock.Anything, mock.Anything).Return(assert.AnError).Once()

	cs := newTestChatServer(t, repo)

	sender := newTestClient(t, cs, types.User{Id: "emp-1", Role: types.RoleEmployee})
	peer := newTestClient(t, cs, types.User{Id: "emp-2", Role: types.RoleEmployee})

	cs.handleMessage(sender, &ClientFrame{
		Type:      FrameMessage,
		ChannelId: channel.GeneralId,
		Content:   "hello",
	})

	assert.Len(t, messageEvents(queuedEvents(peer)), 1,
		"expected delivery despite the persistence failure")
	assert.Len(t, messageEvents(queuedEvents(sender)), 1)
}

func TestHandleMessageUnroutableChannel(t *testing.T) {
	repo := &store.MockRepository{}
	defer repo.AssertExpectations(t)
	repo.On("SaveMessage", mock.Anything, mock.Anything).Return(nil).Once()

	cs := newTestChatServer(t, repo)

	sender := newTestClient(t, cs, types.User{Id: "emp-1", Role: types.RoleEmployee})
	peer := newTestClient(t, cs, types.User{Id: "emp-2", Role: types.RoleEmployee})

	cs.handleMessage(sender, &ClientFrame{
		Type:      FrameMessage,
		ChannelId: "nonsense-42",
		Content:   "lost",
	})

	assert.Empty(t, messageEvents(queuedEvents(sender)), "expected zero recipients for an unroutable channel")
	assert.Empty(t, messageEvents(queuedEvents(peer)))
}

func TestHandleMarkRead(t *testing.T) {
	repo := &store.MockRepository{}
	defer repo.AssertExpectations(t)
	repo.On("SaveReceipt", mock.Anything, "emp-1", "general-chat", mock.Anything).Return(nil).Once()

	cs := newTestChatServer(t, repo)
	c := newTestClient(t, cs, types.User{Id: "emp-1", Role: types.RoleEmployee})

	cs.handleMarkRead(c, &ClientFrame{Type: FrameMarkRead, ChannelId: "general-chat"})
}

func TestHandleMarkReadEmptyChannel(t *testing.T) {
	repo := &store.MockRepository{}
	defer repo.AssertExpectations(t)

	cs := newTestChatServer(t, repo)
	c := newTestClient(t, cs, types.User{Id: "emp-1", Role: types.RoleEmployee})

	cs.handleMarkRead(c, &ClientFrame{Type: FrameMarkRead})
	repo.AssertNotCalled(t, "SaveReceipt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAnnotatedHierarchy(t *testing.T) {
	repo := &store.MockRepository{}
	defer repo.AssertExpectations(t)
	repo.On("HierarchyTree", mock.Anything).Return(testHierarchy(), nil).Once()

	cs := newTestChatServer(t, repo)
	newTestClient(t, cs, types.User{Id: "mgr-1", Role: types.RoleManager})

	tree, err := cs.AnnotatedHierarchy(t.Context())
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, tree[0].Status)
	assert.Equal(t, StatusOnline, tree[0].Children[0].Status)
}
