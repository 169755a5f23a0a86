package mutator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/engine"
	"github.com/edgesync/edgesync/query"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote"
	"github.com/edgesync/edgesync/replicator"
)

// fakeService is exercised concurrently once Mutator dispatches remote
// writes in the background, so every access to its recorded calls is
// guarded by mu.
type fakeService struct {
	createErr error
	updateErr error
	patchErr  error
	removeErr error

	createDelay time.Duration

	mu      sync.Mutex
	creates []record.Record
	updates []record.Record
	patches []record.Record
	removes []any
}

func (f *fakeService) createCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.creates)
}

func (f *fakeService) updateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.updates)
}

func (f *fakeService) patchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

func (f *fakeService) removeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.removes)
}

func (f *fakeService) Find(context.Context, remote.Query) (remote.FindResult, error) {
	return remote.FindResult{}, nil
}
func (f *fakeService) Get(context.Context, any) (record.Record, error) { return nil, nil }

func (f *fakeService) Create(ctx context.Context, data record.Record) (record.Record, error) {
	if f.createDelay > 0 {
		select {
		case <-time.After(f.createDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.createErr != nil {
		return nil, f.createErr
	}
	applied := data.Clone()
	applied.SetUpdatedAt(time.Now())
	f.mu.Lock()
	f.creates = append(f.creates, applied)
	f.mu.Unlock()
	return applied, nil
}

func (f *fakeService) Update(_ context.Context, _ any, data record.Record) (record.Record, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	applied := data.Clone()
	applied.SetUpdatedAt(time.Now())
	f.mu.Lock()
	f.updates = append(f.updates, applied)
	f.mu.Unlock()
	return applied, nil
}

func (f *fakeService) Patch(_ context.Context, _ any, data record.Record) (record.Record, error) {
	if f.patchErr != nil {
		return nil, f.patchErr
	}
	applied := data.Clone()
	applied.SetUpdatedAt(time.Now())
	f.mu.Lock()
	f.patches = append(f.patches, applied)
	f.mu.Unlock()
	return applied, nil
}

func (f *fakeService) Remove(_ context.Context, id any) (record.Record, error) {
	if f.removeErr != nil {
		return nil, f.removeErr
	}
	f.mu.Lock()
	f.removes = append(f.removes, id)
	f.mu.Unlock()
	applied := record.Record{"id": id}
	applied.SetUpdatedAt(time.Now())
	return applied, nil
}

type fakeEventSource struct{}

func (fakeEventSource) On(string, func(record.Record)) func() { return func() {} }

func newConnectedMutator(t *testing.T, svc *fakeService) (*Mutator, *engine.Engine) {
	t.Helper()
	eng := engine.New(engine.Config{UseUUID: true, UseUpdatedAt: true})
	r := replicator.New(replicator.Config{
		Engine:      eng,
		Service:     svc,
		EventSource: fakeEventSource{},
	})
	require.NoError(t, r.Connect(context.Background(), nil))
	m, err := New(Config{Replicator: r, Timeout: time.Second})
	require.NoError(t, err)
	return m, eng
}

func TestNewRequiresUUIDAndUpdatedAt(t *testing.T) {
	eng := engine.New(engine.Config{})
	r := replicator.New(replicator.Config{Engine: eng, Service: &fakeService{}, EventSource: fakeEventSource{}})
	_, err := New(Config{Replicator: r})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeBadRequest))
}

func TestFindFiltersLocalRecords(t *testing.T) {
	m, eng := newConnectedMutator(t, &fakeService{})
	eng.Snapshot([]record.Record{
		{"id": 1, "uuid": "a", "kind": "x"},
		{"id": 2, "uuid": "b", "kind": "y"},
	})
	items, page := m.Find(query.Params{Query: map[string]any{"kind": "y"}})
	assert.Nil(t, page)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0]["id"])
}

func TestGetReturnsNotFoundForMissingUUID(t *testing.T) {
	m, _ := newConnectedMutator(t, &fakeService{})
	_, err := m.Get("missing", query.Params{})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeNotFound))
}

func TestCreateMintsUUIDAndConfirmsAgainstRemote(t *testing.T) {
	svc := &fakeService{}
	m, eng := newConnectedMutator(t, svc)

	result, err := m.Create(context.Background(), record.Record{"title": "a"}, query.Params{})
	require.NoError(t, err)
	applied := result.(record.Record)
	uuid, ok := applied.UUID()
	require.True(t, ok)
	assert.NotEmpty(t, uuid)

	require.Eventually(t, func() bool { return svc.createCount() == 1 }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(eng.Queued()) == 0 }, time.Second, time.Millisecond)
}

func TestCreateDuplicateUUIDIsBadRequest(t *testing.T) {
	svc := &fakeService{}
	m, eng := newConnectedMutator(t, svc)
	eng.Snapshot([]record.Record{{"id": 1, "uuid": "dup"}})

	_, err := m.Create(context.Background(), record.Record{"uuid": "dup"}, query.Params{})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeBadRequest))
}

func TestCreateArrayFanOut(t *testing.T) {
	svc := &fakeService{}
	m, _ := newConnectedMutator(t, svc)

	result, err := m.Create(context.Background(), []record.Record{
		{"title": "a"}, {"title": "b"},
	}, query.Params{})
	require.NoError(t, err)
	out := result.([]record.Record)
	require.Len(t, out, 2)
	require.Eventually(t, func() bool { return svc.createCount() == 2 }, time.Second, time.Millisecond)
}

func TestCreateWhenDisconnectedIsBadRequest(t *testing.T) {
	eng := engine.New(engine.Config{UseUUID: true, UseUpdatedAt: true})
	r := replicator.New(replicator.Config{Engine: eng, Service: &fakeService{}, EventSource: fakeEventSource{}})
	m, err := New(Config{Replicator: r})
	require.NoError(t, err)

	_, err = m.Create(context.Background(), record.Record{"title": "a"}, query.Params{})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeBadRequest))
}

func TestCreateLeavesQueuedOnRemoteTimeout(t *testing.T) {
	svc := &fakeService{createDelay: 50 * time.Millisecond}
	eng := engine.New(engine.Config{UseUUID: true, UseUpdatedAt: true})
	r := replicator.New(replicator.Config{Engine: eng, Service: svc, EventSource: fakeEventSource{}})
	require.NoError(t, r.Connect(context.Background(), nil))
	m, err := New(Config{Replicator: r, Timeout: time.Millisecond})
	require.NoError(t, err)

	result, err := m.Create(context.Background(), record.Record{"title": "a"}, query.Params{})
	require.NoError(t, err)
	assert.NotNil(t, result)
	assert.Len(t, eng.Queued(), 1)
}

func TestUpdateRequiresDataUUID(t *testing.T) {
	m, eng := newConnectedMutator(t, &fakeService{})
	eng.Snapshot([]record.Record{{"id": 1, "uuid": "a"}})

	_, err := m.Update(context.Background(), 1, record.Record{"title": "new"})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeBadRequest))
}

func TestUpdateNotFound(t *testing.T) {
	m, _ := newConnectedMutator(t, &fakeService{})
	_, err := m.Update(context.Background(), 99, record.Record{"uuid": "a"})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeNotFound))
}

func TestUpdateCoalescesRepeatedOfflineWrites(t *testing.T) {
	svc := &fakeService{updateErr: edgeerr.Remote(assert.AnError)}
	m, eng := newConnectedMutator(t, svc)
	eng.Snapshot([]record.Record{{"id": 1, "uuid": "a", "title": "old"}})

	for i, title := range []string{"one", "two", "three"} {
		applied, err := m.Update(context.Background(), 1, record.Record{"uuid": "a", "title": title})
		require.NoError(t, err, "update %d", i)
		assert.Equal(t, title, applied["title"])
		assert.Len(t, eng.Queued(), 1, "update %d should coalesce, not append", i)
	}

	queued := eng.Queued()
	require.Len(t, queued, 1)
	assert.Equal(t, "three", queued[0].Record["title"])
}

func TestUpdateAppliesAndConfirms(t *testing.T) {
	svc := &fakeService{}
	m, eng := newConnectedMutator(t, svc)
	eng.Snapshot([]record.Record{{"id": 1, "uuid": "a", "title": "old"}})

	applied, err := m.Update(context.Background(), 1, record.Record{"uuid": "a", "title": "new"})
	require.NoError(t, err)
	assert.Equal(t, "new", applied["title"])
	require.Eventually(t, func() bool { return len(eng.Queued()) == 0 }, time.Second, time.Millisecond)
}

func TestPatchSingleMergesOverExisting(t *testing.T) {
	svc := &fakeService{}
	m, eng := newConnectedMutator(t, svc)
	eng.Snapshot([]record.Record{{"id": 1, "uuid": "a", "title": "old", "done": false}})

	result, err := m.Patch(context.Background(), 1, record.Record{"done": true}, query.Params{})
	require.NoError(t, err)
	applied := result.(record.Record)
	assert.Equal(t, "old", applied["title"])
	assert.Equal(t, true, applied["done"])
}

func TestPatchFansOutWhenIDNil(t *testing.T) {
	svc := &fakeService{}
	m, eng := newConnectedMutator(t, svc)
	eng.Snapshot([]record.Record{
		{"id": 1, "uuid": "a", "done": false},
		{"id": 2, "uuid": "b", "done": false},
	})

	result, err := m.Patch(context.Background(), nil, record.Record{"done": true}, query.Params{})
	require.NoError(t, err)
	out := result.([]record.Record)
	assert.Len(t, out, 2)
	require.Eventually(t, func() bool { return svc.patchCount() == 2 }, time.Second, time.Millisecond)
}

func TestRemoveSingle(t *testing.T) {
	svc := &fakeService{}
	m, eng := newConnectedMutator(t, svc)
	eng.Snapshot([]record.Record{{"id": 1, "uuid": "a"}})

	result, err := m.Remove(context.Background(), 1, query.Params{})
	require.NoError(t, err)
	removed := result.(record.Record)
	assert.Equal(t, "a", removed["uuid"])
	assert.Len(t, eng.Records(), 0)
	require.Eventually(t, func() bool { return svc.removeCount() == 1 }, time.Second, time.Millisecond)
}

func TestRemoveFansOutWhenIDNil(t *testing.T) {
	svc := &fakeService{}
	m, eng := newConnectedMutator(t, svc)
	eng.Snapshot([]record.Record{
		{"id": 1, "uuid": "a"},
		{"id": 2, "uuid": "b"},
	})

	result, err := m.Remove(context.Background(), nil, query.Params{})
	require.NoError(t, err)
	out := result.([]record.Record)
	assert.Len(t, out, 2)
	assert.Empty(t, eng.Records())
}

func TestRemoveNotFound(t *testing.T) {
	m, _ := newConnectedMutator(t, &fakeService{})
	_, err := m.Remove(context.Background(), 404, query.Params{})
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeNotFound))
}
