package workers

import (
	"context"
	"time"

	"luminate/backend/repository"
	"luminate/backend/utils"

	"gorm.io/gorm"
)

// PopularitySnapshotter periodically records every topic's popularity into
// topic_popularity_history.
type PopularitySnapshotter struct {
	topics   *repository.TopicRepo
	interval time.Duration
	log      *utils.Logger
	now      func() time.Time
}

func NewPopularitySnapshotter(db *gorm.DB, interval time.Duration, log *utils.Logger) *PopularitySnapshotter {
	return &PopularitySnapshotter{
		topics:   repository.NewTopicRepo(db),
		interval: interval,
		log:      log.With("worker", "popularity_snapshot"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SnapshotOnce records one point per topic.
func (p *PopularitySnapshotter) SnapshotOnce(ctx context.Context) (int, error) {
	n, err := p.topics.SnapshotPopularity(ctx, p.now())
	if err != nil {
		return 0, err
	}
	p.log.Debug("popularity snapshot", "topics", n)
	return n, nil
}

// Run snapshots immediately and then on every tick until ctx is done.
func (p *PopularitySnapshotter) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.log.Info("popularity snapshots disabled")
		return
	}
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if _, err := p.SnapshotOnce(ctx); err != nil && ctx.Err() == nil {
			p.log.Warn("popularity snapshot failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
