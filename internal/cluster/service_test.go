package cluster

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/datastreams/internal/domain/errs"
	"github.com/dropDatabas3/datastreams/internal/metadata"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	resp Response
	err  error
}

func newTestService(t *testing.T, pub Publisher) *Service {
	t.Helper()
	s := NewService(metadata.NewClusterState("test", metadata.DiscoveryNodes{}), pub)
	s.Start()
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ackedTask(run func(*metadata.ClusterState) (*metadata.ClusterState, error)) (*AckedRequest, chan result) {
	ch := make(chan result, 1)
	return &AckedRequest{
		Prio:          PriorityNormal,
		MasterTimeout: time.Second,
		AckWait:       time.Second,
		Run:           run,
		Listener:      func(resp Response, err error) { ch <- result{resp, err} },
	}, ch
}

func putTemplate(name string) func(*metadata.ClusterState) (*metadata.ClusterState, error) {
	return func(cur *metadata.ClusterState) (*metadata.ClusterState, error) {
		md, err := cur.Metadata.Builder().PutTemplate(name, &metadata.ComposableTemplate{IndexPatterns: []string{name + "-*"}}).Build()
		if err != nil {
			return nil, err
		}
		return cur.Builder().Metadata(md).Build(), nil
	}
}

func wait(t *testing.T, ch chan result) result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for task result")
		return result{}
	}
}

func TestService_ExecutesInSubmissionOrder(t *testing.T) {
	s := newTestService(t, nil)

	var mu sync.Mutex
	var seen []string
	remove := s.AddListener(func(ev ChangedEvent) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, ev.Source)
	})
	defer remove()

	var chans []chan result
	for _, name := range []string{"a", "b", "c"} {
		task, ch := ackedTask(putTemplate(name))
		s.SubmitStateUpdateTask("put-"+name, task)
		chans = append(chans, ch)
	}
	for _, ch := range chans {
		r := wait(t, ch)
		require.NoError(t, r.err)
		assert.True(t, r.resp.Acknowledged)
	}

	st := s.State()
	assert.Equal(t, int64(3), st.Version)
	assert.Equal(t, int64(3), st.Metadata.Version)
	assert.Len(t, st.Metadata.Templates, 3)
	mu.Lock()
	assert.Equal(t, []string{"put-a", "put-b", "put-c"}, seen)
	mu.Unlock()
}

func TestService_UnchangedStateIsNotPublished(t *testing.T) {
	pub := &recordingPublisher{ack: true}
	s := newTestService(t, pub)
	task, ch := ackedTask(func(cur *metadata.ClusterState) (*metadata.ClusterState, error) { return cur, nil })
	s.SubmitStateUpdateTask("noop", task)

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.True(t, r.resp.Acknowledged)
	assert.Equal(t, int64(0), s.State().Version)
	assert.Equal(t, 0, pub.count())
}

func TestService_FailureLeavesStateUntouched(t *testing.T) {
	s := newTestService(t, nil)
	before := s.State()
	boom := errors.New("boom")
	task, ch := ackedTask(func(*metadata.ClusterState) (*metadata.ClusterState, error) { return nil, boom })
	s.SubmitStateUpdateTask("fail", task)

	r := wait(t, ch)
	require.ErrorIs(t, r.err, boom)
	assert.Same(t, before, s.State())
}

func TestService_PanicIsInternalError(t *testing.T) {
	s := newTestService(t, nil)
	task, ch := ackedTask(func(*metadata.ClusterState) (*metadata.ClusterState, error) { panic("bad collaborator") })
	s.SubmitStateUpdateTask("panic", task)

	r := wait(t, ch)
	require.Error(t, r.err)
	assert.True(t, errs.IsInternal(r.err))

	// el escritor sigue vivo
	task, ch = ackedTask(putTemplate("after"))
	s.SubmitStateUpdateTask("after-panic", task)
	require.NoError(t, wait(t, ch).err)
}

func TestService_QueueTimeout(t *testing.T) {
	s := newTestService(t, nil)

	release := make(chan struct{})
	blocker, blockCh := ackedTask(func(cur *metadata.ClusterState) (*metadata.ClusterState, error) {
		<-release
		return cur, nil
	})
	s.SubmitStateUpdateTask("blocker", blocker)

	late, lateCh := ackedTask(putTemplate("late"))
	late.MasterTimeout = 20 * time.Millisecond
	s.SubmitStateUpdateTask("late", late)

	r := wait(t, lateCh)
	require.ErrorIs(t, r.err, ErrProcessClusterEventTimeout)

	close(release)
	require.NoError(t, wait(t, blockCh).err)
	_, ok := s.State().Metadata.Template("late")
	assert.False(t, ok, "timed-out task must never execute")
}

func TestService_PublishFailure(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("no quorum")}
	s := newTestService(t, pub)
	task, ch := ackedTask(putTemplate("x"))
	s.SubmitStateUpdateTask("put-x", task)

	r := wait(t, ch)
	require.ErrorIs(t, r.err, ErrPublishFailed)
	assert.Equal(t, int64(0), s.State().Version)
}

// stalledPublisher nunca commitea: vuelve sólo cuando vence ctx.
type stalledPublisher struct{}

func (stalledPublisher) Publish(ctx context.Context, _ string, _ *metadata.ClusterState) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stalledPublisher) WaitForAck(context.Context, *metadata.ClusterState) bool { return true }

func TestService_CommitBoundedByTaskTimeout(t *testing.T) {
	s := NewService(metadata.NewClusterState("test", metadata.DiscoveryNodes{}), stalledPublisher{},
		WithPublishTimeout(time.Minute))
	s.Start()
	t.Cleanup(func() { _ = s.Close() })

	task, ch := ackedTask(putTemplate("x"))
	task.MasterTimeout = 100 * time.Millisecond
	start := time.Now()
	s.SubmitStateUpdateTask("put-x", task)

	r := wait(t, ch)
	assert.Less(t, time.Since(start), 2*time.Second)
	require.ErrorIs(t, r.err, ErrProcessClusterEventTimeout)
	require.ErrorIs(t, r.err, ErrPublishFailed)
	assert.Equal(t, int64(0), s.State().Version)
}

func TestService_CommitTimeout(t *testing.T) {
	s := NewService(metadata.NewClusterState("test", metadata.DiscoveryNodes{}), nil, WithPublishTimeout(time.Second))

	unbounded := &pendingTask{task: &AckedRequest{}, submitted: time.Now()}
	d, bounded := s.commitTimeout(unbounded)
	assert.Equal(t, time.Second, d)
	assert.False(t, bounded)

	long := &pendingTask{task: &AckedRequest{MasterTimeout: time.Hour}, submitted: time.Now()}
	d, bounded = s.commitTimeout(long)
	assert.Equal(t, time.Second, d)
	assert.False(t, bounded)

	short := &pendingTask{task: &AckedRequest{MasterTimeout: 200 * time.Millisecond}, submitted: time.Now().Add(-50 * time.Millisecond)}
	d, bounded = s.commitTimeout(short)
	assert.True(t, bounded)
	assert.LessOrEqual(t, d, 150*time.Millisecond)
	assert.Greater(t, d, time.Duration(0))
}

func TestService_Unacknowledged(t *testing.T) {
	pub := &recordingPublisher{ack: false}
	s := newTestService(t, pub)
	task, ch := ackedTask(putTemplate("x"))
	s.SubmitStateUpdateTask("put-x", task)

	r := wait(t, ch)
	require.NoError(t, r.err)
	assert.False(t, r.resp.Acknowledged)
	require.NotNil(t, r.resp.State)
	assert.Equal(t, int64(1), r.resp.State.Version, "commit happened even without ack")
	assert.Equal(t, 1, pub.count())
}

func TestService_CloseFailsPending(t *testing.T) {
	s := NewService(metadata.NewClusterState("test", metadata.DiscoveryNodes{}), nil)
	// sin Start: la tarea queda en cola
	task, ch := ackedTask(putTemplate("x"))
	s.SubmitStateUpdateTask("queued", task)
	require.NoError(t, s.Close())
	require.ErrorIs(t, wait(t, ch).err, ErrServiceClosed)

	task, ch = ackedTask(putTemplate("y"))
	s.SubmitStateUpdateTask("after-close", task)
	require.ErrorIs(t, wait(t, ch).err, ErrServiceClosed)
}

func TestService_SubmitAfterCloseDoesNotRunCallbackInline(t *testing.T) {
	s := NewService(metadata.NewClusterState("test", metadata.DiscoveryNodes{}), nil)
	require.NoError(t, s.Close())

	release := make(chan struct{})
	got := make(chan error, 1)
	task := &AckedRequest{
		MasterTimeout: time.Second,
		Run:           putTemplate("z"),
		Listener: func(_ Response, err error) {
			<-release
			got <- err
		},
	}
	returned := make(chan struct{})
	go func() {
		s.SubmitStateUpdateTask("after-close", task)
		close(returned)
	}()
	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("submit blocked on the failure callback")
	}
	close(release)
	select {
	case err := <-got:
		require.ErrorIs(t, err, ErrServiceClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("failure callback never ran")
	}
}

func TestChangedEvent_Diffs(t *testing.T) {
	prev := metadata.NewClusterState("test", metadata.DiscoveryNodes{})
	im := &metadata.IndexMetadata{Index: metadata.Index{Name: ".ds-a-000001"}}
	ds := metadata.NewDataStream("a", metadata.TimestampField{Name: "@timestamp"}, []metadata.Index{im.Index})
	md, err := prev.Metadata.Builder().PutIndex(im).PutDataStream(ds).Build()
	require.NoError(t, err)
	next := prev.Builder().Metadata(md).Build()

	ev := ChangedEvent{Previous: prev, State: next}
	assert.Equal(t, []string{".ds-a-000001"}, ev.IndicesCreated())
	require.Len(t, ev.DataStreamsCreated(), 1)
	assert.False(t, ev.RoutingChanged())
}

type recordingPublisher struct {
	mu  sync.Mutex
	n   int
	err error
	ack bool
}

func (p *recordingPublisher) Publish(context.Context, string, *metadata.ClusterState) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.n++
	return nil
}

func (p *recordingPublisher) WaitForAck(context.Context, *metadata.ClusterState) bool { return p.ack }

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.n
}
