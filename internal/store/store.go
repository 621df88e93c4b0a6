// Package store wraps the persistent backends the chat server depends on:
// the hierarchy tree, the message log, read receipts and the per-role user
// counters. Each call is an independent, non-transactional request; the
// only atomic primitives relied on are the database transaction inside
// SaveMessage and the counter increment.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/orgchat/orgchat/internal/types"
)

// ErrParentNotFound is returned by AppendHierarchyChild when the named
// parent node does not exist.
var ErrParentNotFound = errors.New("parent node not found")

type Repository interface {
	Ping(ctx context.Context) error

	// HierarchyTree returns the persisted organization forest. The returned
	// nodes never carry a transient status.
	HierarchyTree(ctx context.Context) ([]*types.HierarchyNode, error)
	// AppendHierarchyChild inserts node under parentId. An empty parentId
	// appends a new root; an unknown parentId yields ErrParentNotFound.
	AppendHierarchyChild(ctx context.Context, parentId string, node *types.HierarchyNode) error

	// ChannelMessages returns up to limit messages for a channel,
	// newest first.
	ChannelMessages(ctx context.Context, channelId string, limit int) ([]types.Message, error)
	// PrivateChannels returns the ids of every private channel the user
	// participates in, served from the participant index maintained by
	// SaveMessage.
	PrivateChannels(ctx context.Context, userId string) ([]string, error)
	SaveMessage(ctx context.Context, msg types.Message) error

	// ReceiptsByUser returns the user's last-read timestamp per channel.
	ReceiptsByUser(ctx context.Context, userId string) (map[string]time.Time, error)
	// SaveReceipt upserts the last-read timestamp, last write wins.
	SaveReceipt(ctx context.Context, userId, channelId string, ts time.Time) error
}

// CounterStore allocates per-role user numbers. Increments are atomic so
// concurrent provisioning never hands out the same id twice.
type CounterStore interface {
	NextUserNumber(ctx context.Context, role types.Role) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}
