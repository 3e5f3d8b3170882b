package stats

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/social-analytics/models"
)

type fetchResult struct {
	snapshot *models.Snapshot
	err      error
}

// scriptedFetcher returns results in order, repeating the last one. When
// release is set, each call blocks until release receives.
type scriptedFetcher struct {
	mu          sync.Mutex
	results     []fetchResult
	calls       int
	inFlight    int
	maxInFlight int
	honorCtx    bool

	started chan struct{}
	release chan struct{}
}

func (s *scriptedFetcher) Fetch(ctx context.Context) (*models.Snapshot, error) {
	s.mu.Lock()
	idx := s.calls
	if idx >= len(s.results) {
		idx = len(s.results) - 1
	}
	result := s.results[idx]
	s.calls++
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		if s.honorCtx {
			select {
			case <-s.release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		} else {
			<-s.release
		}
	}

	return result.snapshot, result.err
}

func (s *scriptedFetcher) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func startCollector(t *testing.T, c *Collector) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()
	t.Cleanup(cancel)
	return cancel, done
}

func waitForState(t *testing.T, c *Collector, state models.CollectorState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.GetStatus().State == state
	}, time.Second, 5*time.Millisecond, "collector never reached %s", state)
}

func TestCollectorStartsIdle(t *testing.T) {
	c := NewCollector(&scriptedFetcher{}, time.Hour, time.Second, testLogger())

	status := c.GetStatus()
	assert.Equal(t, models.StateIdle, status.State)
	assert.Nil(t, status.Views)
	assert.Empty(t, status.Error)
}

func TestCollectorReady(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{snapshot: scenarioSnapshot()}}}
	c := NewCollector(fetcher, time.Hour, time.Second, testLogger())
	startCollector(t, c)

	waitForState(t, c, models.StateReady)

	status := c.GetStatus()
	require.NotNil(t, status.Views)
	assert.Equal(t, RankUsersByComments(scenarioSnapshot()), status.Views.TopUsers)
	assert.Equal(t, FindTrendingPosts(scenarioSnapshot()), status.Views.TrendingPosts)
	assert.Equal(t, BuildFeed(scenarioSnapshot()), status.Views.Feed)
	assert.Equal(t, 1, status.Cycles)
	assert.False(t, status.LastUpdated.IsZero())
}

func TestCollectorFirstCycleFails(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{
		{err: &FetchError{Stage: StageUsers, Err: errors.New("down")}},
		{snapshot: scenarioSnapshot()},
	}}
	c := NewCollector(fetcher, time.Hour, time.Second, testLogger())
	startCollector(t, c)

	waitForState(t, c, models.StateFailed)
	status := c.GetStatus()
	assert.Nil(t, status.Views)
	assert.Contains(t, status.Error, "users")

	// manual retry
	assert.True(t, c.Refresh())
	waitForState(t, c, models.StateReady)
	status = c.GetStatus()
	assert.NotNil(t, status.Views)
	assert.Empty(t, status.Error)
}

func TestCollectorKeepsViewsOnFailure(t *testing.T) {
	source := scenarioSource()
	fetcher := NewFetcher(source, 2, testLogger())
	c := NewCollector(fetcher, time.Hour, time.Second, testLogger())
	startCollector(t, c)

	waitForState(t, c, models.StateReady)
	before := c.GetStatus().Views
	require.NotNil(t, before)

	// posts fetch for the second user starts failing
	source.postsErr = map[string]error{"B": errors.New("connection refused")}
	require.True(t, c.Refresh())
	waitForState(t, c, models.StateFailed)

	status := c.GetStatus()
	assert.Same(t, before, status.Views)
	assert.Contains(t, status.Error, "posts")
	assert.Contains(t, status.Error, "connection refused")

	assert.True(t, c.DismissError())
	status = c.GetStatus()
	assert.Empty(t, status.Error)
	assert.Same(t, before, status.Views)
	assert.False(t, c.DismissError())
}

func TestCollectorStaleWhileLoading(t *testing.T) {
	fetcher := &scriptedFetcher{
		results: []fetchResult{{snapshot: scenarioSnapshot()}},
		started: make(chan struct{}, 10),
		release: make(chan struct{}),
	}
	c := NewCollector(fetcher, time.Hour, time.Second, testLogger())
	startCollector(t, c)

	<-fetcher.started
	status := c.GetStatus()
	assert.Equal(t, models.StateLoading, status.State)
	assert.Nil(t, status.Views, "first cycle shows a pure loading state")
	fetcher.release <- struct{}{}
	waitForState(t, c, models.StateReady)
	views := c.GetStatus().Views

	require.True(t, c.Refresh())
	<-fetcher.started
	status = c.GetStatus()
	assert.Equal(t, models.StateLoading, status.State)
	assert.Same(t, views, status.Views)
	fetcher.release <- struct{}{}
	waitForState(t, c, models.StateReady)
}

func TestCollectorQueuesOneFollowUp(t *testing.T) {
	fetcher := &scriptedFetcher{
		results: []fetchResult{{snapshot: scenarioSnapshot()}},
		started: make(chan struct{}, 10),
		release: make(chan struct{}, 10),
	}
	c := NewCollector(fetcher, time.Hour, time.Second, testLogger())
	startCollector(t, c)

	<-fetcher.started
	assert.True(t, c.Refresh())
	assert.False(t, c.Refresh())
	assert.False(t, c.Refresh())

	fetcher.release <- struct{}{}
	<-fetcher.started
	fetcher.release <- struct{}{}

	waitForState(t, c, models.StateReady)
	assert.Never(t, func() bool { return fetcher.callCount() > 2 }, 100*time.Millisecond, 10*time.Millisecond)
	assert.Equal(t, 2, fetcher.callCount())

	fetcher.mu.Lock()
	assert.Equal(t, 1, fetcher.maxInFlight)
	fetcher.mu.Unlock()
}

func TestCollectorPollsOnInterval(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{snapshot: scenarioSnapshot()}}}
	c := NewCollector(fetcher, 20*time.Millisecond, time.Second, testLogger())
	startCollector(t, c)

	require.Eventually(t, func() bool {
		return fetcher.callCount() >= 3
	}, time.Second, 5*time.Millisecond)
	assert.GreaterOrEqual(t, c.GetStatus().Cycles, 2)
}

func TestCollectorFetchTimeout(t *testing.T) {
	fetcher := &scriptedFetcher{
		results:  []fetchResult{{snapshot: scenarioSnapshot()}},
		release:  make(chan struct{}),
		honorCtx: true,
	}
	c := NewCollector(fetcher, time.Hour, 20*time.Millisecond, testLogger())
	startCollector(t, c)

	waitForState(t, c, models.StateFailed)
	assert.Contains(t, c.GetStatus().Error, context.DeadlineExceeded.Error())
}

func TestCollectorDiscardsResultAfterStop(t *testing.T) {
	fetcher := &scriptedFetcher{
		results: []fetchResult{{snapshot: scenarioSnapshot()}},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	c := NewCollector(fetcher, time.Hour, time.Second, testLogger())
	_, done := startCollector(t, c)

	<-fetcher.started
	c.Stop()
	fetcher.release <- struct{}{}

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}

	status := c.GetStatus()
	assert.NotEqual(t, models.StateReady, status.State)
	assert.Nil(t, status.Views)
	assert.Zero(t, status.Cycles)
	assert.False(t, c.Refresh())
}

func TestCollectorCancelledContext(t *testing.T) {
	fetcher := &scriptedFetcher{results: []fetchResult{{snapshot: scenarioSnapshot()}}}
	c := NewCollector(fetcher, time.Hour, time.Second, testLogger())
	cancel, done := startCollector(t, c)

	waitForState(t, c, models.StateReady)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("collector did not stop")
	}
	assert.ErrorIs(t, c.Start(context.Background()), ErrDisposed)
}
