package mocks

import (
	"context"

	"github.com/rpggio/farmsync/internal/domain/activity"
	"github.com/rpggio/farmsync/internal/domain/record"
	"github.com/stretchr/testify/mock"
)

// RemoteClient is a mock for record.RemoteClient.
type RemoteClient struct {
	mock.Mock
}

func (m *RemoteClient) Upsert(ctx context.Context, collection, id string, rec record.Record) error {
	args := m.Called(ctx, collection, id, rec)
	return args.Error(0)
}

func (m *RemoteClient) PartialUpdate(ctx context.Context, collection, id string, patch record.Patch) error {
	args := m.Called(ctx, collection, id, patch)
	return args.Error(0)
}

func (m *RemoteClient) QueryByOwner(ctx context.Context, collection, ownerID string) ([]record.Record, error) {
	args := m.Called(ctx, collection, ownerID)
	if list, ok := args.Get(0).([]record.Record); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}

// ActivityRepository is a mock for activity.Repository.
type ActivityRepository struct {
	mock.Mock
}

func (m *ActivityRepository) Log(ctx context.Context, ownerID string, entry *activity.Entry) error {
	args := m.Called(ctx, ownerID, entry)
	return args.Error(0)
}

func (m *ActivityRepository) List(ctx context.Context, ownerID string, opts activity.ListOptions) ([]activity.Entry, error) {
	args := m.Called(ctx, ownerID, opts)
	if list, ok := args.Get(0).([]activity.Entry); ok {
		return list, args.Error(1)
	}
	return nil, args.Error(1)
}
