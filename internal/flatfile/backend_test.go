package flatfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rpggio/farmsync/internal/repository"
	"github.com/stretchr/testify/require"
)

var testSchema = repository.Schema{
	{Name: "lead"},
	{Name: "outbox", AutoIncrement: true},
}

func TestBackend_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	backend, err := Open(dir, testSchema)
	require.NoError(t, err)
	require.NoError(t, backend.Put(ctx, "lead", "l1", []byte(`{"id":"l1","ownerId":"u1"}`)))
	seq, err := backend.NextSequence(ctx, "outbox")
	require.NoError(t, err)
	require.Equal(t, int64(1), seq)

	reopened, err := Open(dir, testSchema)
	require.NoError(t, err)
	doc, err := reopened.Get(ctx, "lead", "l1")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"l1","ownerId":"u1"}`, string(doc))

	seq, err = reopened.NextSequence(ctx, "outbox")
	require.NoError(t, err)
	require.Equal(t, int64(2), seq, "sequence survives reopen")

	_, err = os.Stat(filepath.Join(dir, "lead.json"))
	require.NoError(t, err, "one container file per partition")
}

func TestBackend_GetAllOrdering(t *testing.T) {
	backend, err := Open(t.TempDir(), testSchema)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, backend.Put(ctx, "outbox", "10", []byte(`{"id":10}`)))
	require.NoError(t, backend.Put(ctx, "outbox", "2", []byte(`{"id":2}`)))
	require.NoError(t, backend.Put(ctx, "lead", "b", []byte(`{"id":"b"}`)))
	require.NoError(t, backend.Put(ctx, "lead", "a", []byte(`{"id":"a"}`)))

	outbox, err := backend.GetAll(ctx, "outbox")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":2}`, string(outbox[0]))
	require.JSONEq(t, `{"id":10}`, string(outbox[1]))

	leads, err := backend.GetAll(ctx, "lead")
	require.NoError(t, err)
	require.JSONEq(t, `{"id":"a"}`, string(leads[0]))
	require.JSONEq(t, `{"id":"b"}`, string(leads[1]))
}

func TestBackend_DeleteAndMissing(t *testing.T) {
	backend, err := Open(t.TempDir(), testSchema)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = backend.Get(ctx, "lead", "missing")
	require.ErrorIs(t, err, repository.ErrNotFound)

	require.NoError(t, backend.Put(ctx, "lead", "l1", []byte(`{"id":"l1"}`)))
	require.NoError(t, backend.Delete(ctx, "lead", "l1"))
	require.NoError(t, backend.Delete(ctx, "lead", "l1"))
	_, err = backend.Get(ctx, "lead", "l1")
	require.ErrorIs(t, err, repository.ErrNotFound)
}

func TestBackend_RejectsInvalidInput(t *testing.T) {
	backend, err := Open(t.TempDir(), testSchema)
	require.NoError(t, err)
	ctx := context.Background()

	require.ErrorIs(t, backend.Put(ctx, "lead", "l1", []byte(`{not json`)), repository.ErrInvalidInput)
	require.ErrorIs(t, backend.Put(ctx, "outbox", "abc", []byte(`{}`)), repository.ErrInvalidInput)
	require.ErrorIs(t, backend.Put(ctx, "nope", "x", []byte(`{}`)), repository.ErrUnknownPartition)

	_, err = Open("  ", testSchema)
	require.ErrorIs(t, err, repository.ErrInvalidInput)
}
