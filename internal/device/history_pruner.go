package device

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultPruneSchedule runs retention once a day shortly after midnight.
const DefaultPruneSchedule = "5 0 * * *"

const pruneTimeout = time.Minute

// HistoryPruner deletes battery readings older than the retention window on
// a cron schedule.
type HistoryPruner struct {
	history   BatteryHistory
	retention time.Duration
	cron      *cron.Cron
	logger    Logger
	now       func() time.Time

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
}

// NewHistoryPruner validates schedule and returns a stopped pruner. A
// retention of zero disables pruning: Start and PruneNow become no-ops.
func NewHistoryPruner(history BatteryHistory, retention time.Duration, schedule string, logger Logger) (*HistoryPruner, error) {
	if logger == nil {
		logger = noopLogger{}
	}
	if schedule == "" {
		schedule = DefaultPruneSchedule
	}
	p := &HistoryPruner{
		history:   history,
		retention: retention,
		cron:      cron.New(),
		logger:    logger,
		now:       time.Now,
	}
	if _, err := p.cron.AddFunc(schedule, p.run); err != nil {
		return nil, fmt.Errorf("invalid prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// Start runs the schedule until Stop or until ctx is cancelled.
func (p *HistoryPruner) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.retention <= 0 {
		return
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.cron.Start()
	p.started = true
	p.logger.Info("battery history pruning scheduled", "retention", p.retention)
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *HistoryPruner) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	p.cancel()
	p.mu.Unlock()

	// run takes mu, so wait outside it.
	<-p.cron.Stop().Done()
}

// PruneNow deletes everything older than the retention window.
func (p *HistoryPruner) PruneNow(ctx context.Context) (int64, error) {
	if p.retention <= 0 {
		return 0, nil
	}
	return p.history.Prune(ctx, p.now().Add(-p.retention))
}

func (p *HistoryPruner) run() {
	p.mu.Lock()
	ctx := p.ctx
	p.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, pruneTimeout)
	defer cancel()

	n, err := p.PruneNow(ctx)
	if err != nil {
		p.logger.Warn("battery history prune failed", "error", err)
		return
	}
	p.logger.Debug("battery history pruned", "rows", n)
}
