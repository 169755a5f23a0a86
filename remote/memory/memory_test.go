package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote"
)

func TestFindReturnsSeedRecords(t *testing.T) {
	svc := New(Config{Records: []record.Record{{"id": 1}, {"id": 2}}})
	result, err := svc.Find(context.Background(), remote.Query{})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
}

func TestFindAppliesMatchAndPagination(t *testing.T) {
	svc := New(Config{Records: []record.Record{
		{"id": 1, "kind": "a"}, {"id": 2, "kind": "b"}, {"id": 3, "kind": "a"},
	}})
	result, err := svc.Find(context.Background(), remote.Query{Match: map[string]any{"kind": "a"}, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Total)
	assert.Len(t, result.Data, 1)
}

func TestCreateMintsIDAndStampsUpdatedAt(t *testing.T) {
	svc := New(Config{Records: []record.Record{{"id": 1}}})
	created, err := svc.Create(context.Background(), record.Record{"title": "a"})
	require.NoError(t, err)
	id, ok := created.ID()
	require.True(t, ok)
	assert.Equal(t, 2, id)
	_, ok = created.UpdatedAt()
	assert.True(t, ok)
}

func TestUpdateNotFound(t *testing.T) {
	svc := New(Config{})
	_, err := svc.Update(context.Background(), 1, record.Record{})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeNotFound))
}

func TestPatchMergesOverExisting(t *testing.T) {
	svc := New(Config{Records: []record.Record{{"id": 1, "title": "old", "done": false}}})
	patched, err := svc.Patch(context.Background(), 1, record.Record{"done": true})
	require.NoError(t, err)
	assert.Equal(t, "old", patched["title"])
	assert.Equal(t, true, patched["done"])
}

func TestRemoveDeletesAndReturnsPriorRecord(t *testing.T) {
	svc := New(Config{Records: []record.Record{{"id": 1, "title": "a"}}})
	removed, err := svc.Remove(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "a", removed["title"])

	result, _ := svc.Find(context.Background(), remote.Query{})
	assert.Equal(t, 0, result.Total)
}

func TestFailNextAppliesOnce(t *testing.T) {
	svc := New(Config{Records: []record.Record{{"id": 1}}})
	svc.FailNext(edgeerr.Remote(nil))

	_, err := svc.Find(context.Background(), remote.Query{})
	require.Error(t, err)

	_, err = svc.Find(context.Background(), remote.Query{})
	require.NoError(t, err)
}

func TestLatencyHonoursContextDeadline(t *testing.T) {
	svc := New(Config{Latency: 50 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()

	_, err := svc.Create(ctx, record.Record{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestOnDeliversOwnWrites(t *testing.T) {
	svc := New(Config{})
	var got record.Record
	off := svc.On(remote.EventCreated, func(rec record.Record) { got = rec })
	defer off()

	_, err := svc.Create(context.Background(), record.Record{"title": "a"})
	require.NoError(t, err)
	assert.Equal(t, "a", got["title"])
}

func TestPushExternalDeliversWithoutMutatingStore(t *testing.T) {
	svc := New(Config{})
	var got record.Record
	svc.On(remote.EventUpdated, func(rec record.Record) { got = rec })

	svc.PushExternal(remote.EventUpdated, record.Record{"id": 99, "title": "external"})
	assert.Equal(t, "external", got["title"])

	result, _ := svc.Find(context.Background(), remote.Query{})
	assert.Equal(t, 0, result.Total)
}
