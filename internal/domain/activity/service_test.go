package activity_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rpggio/farmsync/internal/domain/activity"
	"github.com/rpggio/farmsync/internal/localstore"
	"github.com/rpggio/farmsync/internal/repository/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestActivityService_LogAndList(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner1"

	repo := &mocks.ActivityRepository{}
	entry := &activity.Entry{
		Kind:    "lead",
		Type:    activity.TypeRecordCreated,
		Summary: "created",
	}

	repo.On("Log", ctx, ownerID, entry).Return(nil)
	repo.On("List", ctx, ownerID, activity.ListOptions{Kind: "lead"}).Return([]activity.Entry{}, nil)

	svc := activity.NewService(repo, nil)
	require.NoError(t, svc.LogActivity(ctx, ownerID, entry))
	require.False(t, entry.CreatedAt.IsZero())
	_, err := svc.GetRecentActivity(ctx, ownerID, activity.ListOptions{Kind: "lead"})
	require.NoError(t, err)
	repo.AssertExpectations(t)
}

func TestActivityService_RejectsIncompleteEntries(t *testing.T) {
	repo := &mocks.ActivityRepository{}
	svc := activity.NewService(repo, nil)
	ctx := context.Background()

	require.ErrorIs(t, svc.LogActivity(ctx, "owner1", nil), activity.ErrInvalidInput)
	require.ErrorIs(t, svc.LogActivity(ctx, "", &activity.Entry{Type: activity.TypePushFailed}), activity.ErrInvalidInput)
	require.ErrorIs(t, svc.LogActivity(ctx, "owner1", &activity.Entry{}), activity.ErrInvalidInput)
	repo.AssertNotCalled(t, "Log", mock.Anything, mock.Anything, mock.Anything)
}

func TestLocalRepository_NewestFirstAndFiltered(t *testing.T) {
	openers := map[string]func(t *testing.T) localstore.Opener{
		"sqlite":   func(t *testing.T) localstore.Opener { return localstore.SQLiteOpener(filepath.Join(t.TempDir(), "farm.db")) },
		"flatfile": func(t *testing.T) localstore.Opener { return localstore.FlatOpener(t.TempDir()) },
	}
	for name, opener := range openers {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := localstore.New(localstore.Options{Preferred: opener(t)})
			t.Cleanup(func() { _ = store.Close() })
			backend, err := store.Backend(ctx)
			require.NoError(t, err)
			require.Equal(t, name, backend)

			svc := activity.NewService(activity.NewLocalRepository(store, localstore.PartitionActivity), nil)

			log := func(owner, kind string, typ activity.Type) {
				require.NoError(t, svc.LogActivity(ctx, owner, &activity.Entry{Kind: kind, Type: typ, Summary: string(typ)}))
			}
			log("owner1", "lead", activity.TypeRecordCreated)
			log("owner1", "sale", activity.TypeRecordCreated)
			log("owner2", "lead", activity.TypeRecordCreated)
			log("owner1", "lead", activity.TypeRecordPushed)

			entries, err := svc.GetRecentActivity(ctx, "owner1", activity.ListOptions{})
			require.NoError(t, err)
			require.Len(t, entries, 3)
			require.Equal(t, activity.TypeRecordPushed, entries[0].Type)
			require.Greater(t, entries[0].ID, entries[1].ID)

			leads, err := svc.GetRecentActivity(ctx, "owner1", activity.ListOptions{Kind: "lead", Limit: 1})
			require.NoError(t, err)
			require.Len(t, leads, 1)
			require.Equal(t, activity.TypeRecordPushed, leads[0].Type)

			empty, err := svc.GetRecentActivity(ctx, "owner1", activity.ListOptions{Offset: 10})
			require.NoError(t, err)
			require.Empty(t, empty)
		})
	}
}
