package stats

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/social-analytics/models"
)

const defaultPollingInterval = 30 * time.Second

// ErrDisposed is returned when starting a collector that was already stopped
var ErrDisposed = errors.New("collector has been disposed")

// SnapshotFetcher produces a complete snapshot or fails
type SnapshotFetcher interface {
	Fetch(ctx context.Context) (*models.Snapshot, error)
}

// Collector polls for snapshots and keeps the views derived from the last
// successful one. Cycles run one at a time on the Start goroutine.
type Collector struct {
	fetcher         SnapshotFetcher
	pollingInterval time.Duration
	fetchTimeout    time.Duration
	trigger         chan struct{}
	status          models.Status
	log             *logrus.Logger
	mutex           sync.RWMutex
	cancel          context.CancelFunc
	disposed        bool
}

// NewCollector creates a new collector. A non-positive fetchTimeout falls
// back to half the polling interval.
func NewCollector(
	fetcher SnapshotFetcher,
	pollingInterval time.Duration,
	fetchTimeout time.Duration,
	log *logrus.Logger,
) *Collector {
	if pollingInterval <= 0 {
		pollingInterval = defaultPollingInterval
	}
	if fetchTimeout <= 0 {
		fetchTimeout = pollingInterval / 2
	}

	return &Collector{
		fetcher:         fetcher,
		pollingInterval: pollingInterval,
		fetchTimeout:    fetchTimeout,
		trigger:         make(chan struct{}, 1),
		status: models.Status{
			State:     models.StateIdle,
			StartTime: time.Now(),
		},
		log: log,
	}
}

// Start runs a cycle immediately and then once per polling interval, plus
// whenever Refresh is called, until ctx is cancelled or Stop is called.
func (c *Collector) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mutex.Lock()
	if c.disposed {
		c.mutex.Unlock()
		return ErrDisposed
	}
	c.cancel = cancel
	c.mutex.Unlock()

	defer c.dispose()

	c.log.WithFields(logrus.Fields{
		"polling_interval": c.pollingInterval.String(),
		"fetch_timeout":    c.fetchTimeout.String(),
	}).Info("Starting collector")

	ticker := time.NewTicker(c.pollingInterval)
	defer ticker.Stop()

	c.runCycle(ctx)

	for {
		// the interval counts from the end of the previous cycle, so a tick
		// that fired while a cycle was running never stacks up behind it
		ticker.Reset(c.pollingInterval)
		select {
		case <-ticker.C:
		default:
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.runCycle(ctx)
		case <-c.trigger:
			c.log.Debug("Manual refresh triggered")
			c.runCycle(ctx)
		}
	}
}

// Stop cancels the timer and any in-flight fetch. Results that arrive after
// Stop are discarded.
func (c *Collector) Stop() {
	c.mutex.Lock()
	c.disposed = true
	cancel := c.cancel
	c.mutex.Unlock()

	if cancel != nil {
		cancel()
	}
}

// Refresh asks for a cycle as soon as possible. If a request is already
// queued, it is a no-op and returns false.
func (c *Collector) Refresh() bool {
	c.mutex.RLock()
	disposed := c.disposed
	c.mutex.RUnlock()
	if disposed {
		return false
	}

	select {
	case c.trigger <- struct{}{}:
		return true
	default:
		return false
	}
}

// DismissError hides the current error notice. Views are untouched.
func (c *Collector) DismissError() bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.status.Error == "" {
		return false
	}
	c.status.Error = ""
	return true
}

// GetStatus returns a copy of the current status
// note: Views is shared, but it is never modified once published
func (c *Collector) GetStatus() models.Status {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.status
}

// runCycle fetches a snapshot and publishes the views derived from it
func (c *Collector) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	c.mutex.Lock()
	c.status.State = models.StateLoading
	c.mutex.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.fetchTimeout)
	defer cancel()

	snapshot, err := c.fetcher.Fetch(fetchCtx)
	if ctx.Err() != nil {
		c.log.Info("Collector stopped during fetch, discarding result")
		return
	}

	var views *models.Views
	if err == nil {
		views = BuildViews(snapshot)
	}

	c.mutex.Lock()
	if c.disposed {
		c.mutex.Unlock()
		return
	}
	c.status.Cycles++
	if err != nil {
		c.status.State = models.StateFailed
		c.status.Error = err.Error()
	} else {
		c.status.State = models.StateReady
		c.status.Views = views
		c.status.Error = ""
		c.status.LastUpdated = time.Now()
	}
	c.mutex.Unlock()

	if err != nil {
		c.log.WithError(err).Error("Failed to fetch snapshot")
		return
	}
	c.logStatistics()
}

// dispose marks the collector as finished so late results are ignored
func (c *Collector) dispose() {
	c.mutex.Lock()
	c.disposed = true
	c.mutex.Unlock()

	c.log.Info("Collector stopped")
}

// logStatistics logs the current views
func (c *Collector) logStatistics() {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	fields := logrus.Fields{
		"state":         c.status.State,
		"cycles":        c.status.Cycles,
		"running_since": time.Since(c.status.StartTime).String(),
	}
	if views := c.status.Views; views != nil {
		fields["total_posts"] = views.Posts.TotalPosts
		fields["total_users"] = views.Users.TotalUsers
		fields["trending_posts"] = len(views.TrendingPosts)
		fields["total_engagement"] = views.Engagement.TotalEngagement
	}

	c.log.WithFields(fields).Info("Statistics updated")
}
