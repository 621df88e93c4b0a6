package store

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/orgchat/orgchat/internal/types"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockRepository) HierarchyTree(ctx context.Context) ([]*types.HierarchyNode, error) {
	args := m.Called(ctx)
	if tree, ok := args.Get(0).([]*types.HierarchyNode); ok {
		return tree, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) AppendHierarchyChild(ctx context.Context, parentId string, node *types.HierarchyNode) error {
	args := m.Called(ctx, parentId, node)
	return args.Error(0)
}
func (m *MockRepository) ChannelMessages(ctx context.Context, channelId string, limit int) ([]types.Message, error) {
	args := m.Called(ctx, channelId, limit)
	if msgs, ok := args.Get(0).([]types.Message); ok {
		return msgs, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) PrivateChannels(ctx context.Context, userId string) ([]string, error) {
	args := m.Called(ctx, userId)
	if channels, ok := args.Get(0).([]string); ok {
		return channels, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) SaveMessage(ctx context.Context, msg types.Message) error {
	args := m.Called(ctx, msg)
	return args.Error(0)
}
func (m *MockRepository) ReceiptsByUser(ctx context.Context, userId string) (map[string]time.Time, error) {
	args := m.Called(ctx, userId)
	if receipts, ok := args.Get(0).(map[string]time.Time); ok {
		return receipts, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockRepository) SaveReceipt(ctx context.Context, userId, channelId string, ts time.Time) error {
	args := m.Called(ctx, userId, channelId, ts)
	return args.Error(0)
}

type MockCounterStore struct {
	mock.Mock
}

func (m *MockCounterStore) NextUserNumber(ctx context.Context, role types.Role) (int64, error) {
	args := m.Called(ctx, role)
	return args.Get(0).(int64), args.Error(1)
}
func (m *MockCounterStore) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockCounterStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
