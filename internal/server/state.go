package server

import (
	"context"
	"slices"
	"sort"

	"go.uber.org/zap"

	"github.com/orgchat/orgchat/internal/channel"
	"github.com/orgchat/orgchat/internal/types"
)

// historyLimit is the number of most recent messages fetched per channel
// for the initial-state payload.
const historyLimit = 50

// InitialState assembles the bootstrap payload for a newly connected user:
// the annotated hierarchy, recent history for every subscribed channel and
// per-channel unread counts. Store failures degrade the affected part of
// the payload to empty instead of rejecting the connection.
func (cs *ChatServer) InitialState(ctx context.Context, user types.User) InitialState {
	state := InitialState{
		Hierarchy:    []*types.HierarchyNode{},
		Messages:     []types.Message{},
		UnreadCounts: make(map[string]int),
	}

	online := cs.registry.OnlineIds()

	tree, err := cs.repo.HierarchyTree(ctx)
	if err != nil {
		cs.log.Error("error fetching hierarchy, sending empty tree", zap.Error(err))
	} else {
		state.Hierarchy = annotateHierarchy(tree, online)
	}

	channels := channel.Subscribed(user.Role)
	private, err := cs.repo.PrivateChannels(ctx, user.Id)
	if err != nil {
		cs.log.Error("error fetching private channels", zap.Error(err))
	} else {
		channels = append(channels, private...)
	}

	receipts, err := cs.repo.ReceiptsByUser(ctx, user.Id)
	if err != nil {
		cs.log.Error("error fetching read receipts", zap.Error(err))
		receipts = nil
	}

	seen := make(map[string]struct{})
	for _, channelId := range channels {
		history, err := cs.repo.ChannelMessages(ctx, channelId, historyLimit)
		if err != nil {
			cs.log.Error("error fetching channel history",
				zap.String("channel_id", channelId), zap.Error(err))
			continue
		}

		// The store returns newest first; display order is ascending.
		slices.Reverse(history)

		lastRead, hasReceipt := receipts[channelId]
		unread := 0
		for _, msg := range history {
			if msg.SenderId != user.Id && (!hasReceipt || msg.Timestamp.After(lastRead)) {
				unread++
			}

			if _, dup := seen[msg.Id]; dup {
				continue
			}
			seen[msg.Id] = struct{}{}
			state.Messages = append(state.Messages, msg)
		}
		state.UnreadCounts[channelId] = unread
	}

	sort.SliceStable(state.Messages, func(i, j int) bool {
		a, b := state.Messages[i], state.Messages[j]
		if a.Timestamp.Equal(b.Timestamp) {
			return a.Id < b.Id
		}
		return a.Timestamp.Before(b.Timestamp)
	})

	return state
}
