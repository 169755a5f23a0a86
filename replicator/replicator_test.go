package replicator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgesync/edgesync/edgeerr"
	"github.com/edgesync/edgesync/engine"
	"github.com/edgesync/edgesync/internal/resilience"
	"github.com/edgesync/edgesync/record"
	"github.com/edgesync/edgesync/remote"
)

type fakeService struct {
	records   []record.Record
	findErr   error
	createErr error
}

func (f *fakeService) Find(context.Context, remote.Query) (remote.FindResult, error) {
	if f.findErr != nil {
		return remote.FindResult{}, f.findErr
	}
	return remote.FindResult{Total: len(f.records), Data: f.records}, nil
}
func (f *fakeService) Get(context.Context, any) (record.Record, error) { return nil, nil }
func (f *fakeService) Create(_ context.Context, data record.Record) (record.Record, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	applied := data.Clone()
	applied.SetUpdatedAt(time.Now())
	return applied, nil
}
func (f *fakeService) Update(_ context.Context, _ any, data record.Record) (record.Record, error) {
	return data, nil
}
func (f *fakeService) Patch(_ context.Context, _ any, data record.Record) (record.Record, error) {
	return data, nil
}
func (f *fakeService) Remove(context.Context, any) (record.Record, error) { return nil, nil }

type fakeEventSource struct {
	subscribed int
}

func (f *fakeEventSource) On(event string, fn func(record.Record)) func() {
	f.subscribed++
	return func() { f.subscribed-- }
}

func seedRecords() []record.Record {
	out := make([]record.Record, 0, 5)
	for i := 0; i < 5; i++ {
		out = append(out, record.Record{"id": i, "uuid": fmt.Sprintf("%d", 1000+i), "order": i})
	}
	return out
}

func TestConnectSnapshotsFiltersSortsAndListens(t *testing.T) {
	e := engine.New(engine.Config{UseUUID: true, UseUpdatedAt: true})
	svc := &fakeService{records: seedRecords()}
	src := &fakeEventSource{}

	r := New(Config{
		Engine:      e,
		Service:     svc,
		EventSource: src,
		Publication: func(rec record.Record) bool { v, _ := rec.Get("order"); n, _ := v.(int); return n <= 3 },
		Sort:        Sort("order"),
	})

	require.NoError(t, r.Connect(context.Background(), nil))
	assert.True(t, r.Connected())
	assert.Equal(t, 4, src.subscribed)
	assert.Len(t, e.Records(), 4)
}

func TestConnectPropagatesSnapshotFailure(t *testing.T) {
	e := engine.New(engine.Config{})
	svc := &fakeService{findErr: edgeerr.Remote(assertErr)}
	src := &fakeEventSource{}

	r := New(Config{Engine: e, Service: svc, EventSource: src})
	err := r.Connect(context.Background(), nil)
	require.Error(t, err)
	assert.False(t, r.Connected())
	assert.Equal(t, 0, src.subscribed)
}

var assertErr = context.DeadlineExceeded

func TestConnectReplaysQueueBeforeListening(t *testing.T) {
	e := engine.New(engine.Config{UseUUID: true, UseUpdatedAt: true})
	rec := record.Record{"id": 1, "uuid": "1001"}
	e.AddQueuedEvent("create", rec, rec)

	svc := &fakeService{records: seedRecords()}
	src := &fakeEventSource{}
	r := New(Config{Engine: e, Service: svc, EventSource: src})

	require.NoError(t, r.Connect(context.Background(), nil))
	assert.Empty(t, e.Queued())
}

func TestDisconnectDetachesListeners(t *testing.T) {
	e := engine.New(engine.Config{})
	svc := &fakeService{records: seedRecords()}
	src := &fakeEventSource{}
	r := New(Config{Engine: e, Service: svc, EventSource: src})

	require.NoError(t, r.Connect(context.Background(), nil))
	r.Disconnect()
	assert.False(t, r.Connected())
	assert.Equal(t, 0, src.subscribed)
	assert.False(t, e.IsListening())
}

func TestGetUUIDLongAndShort(t *testing.T) {
	e := engine.New(engine.Config{})
	r := New(Config{Engine: e, Service: &fakeService{}, EventSource: &fakeEventSource{}})

	long := r.GetUUID(false)
	assert.Len(t, long, 36)

	short := r.GetUUID(true)
	assert.Len(t, short, 15)
	assert.NotEqual(t, long, short)
}

func TestCircuitBreakerOpensConnectAfterRepeatedFailures(t *testing.T) {
	e := engine.New(engine.Config{})
	svc := &fakeService{findErr: edgeerr.Remote(assertErr)}
	cb := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{FailureThreshold: 2, OpenTimeout: time.Minute})

	r := New(Config{Engine: e, Service: svc, EventSource: &fakeEventSource{}, CircuitBreaker: cb})

	require.Error(t, r.Connect(context.Background(), nil))
	require.Error(t, r.Connect(context.Background(), nil))

	err := r.Connect(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, edgeerr.IsCode(err, edgeerr.CodeRemote))
}
