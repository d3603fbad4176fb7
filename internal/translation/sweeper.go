package translation

import (
	"context"
	"log"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/redis/go-redis/v9"
)

// Pruner deletes completed translations past their freshness deadline.
type Pruner interface {
	DeleteExpiredTranslations(ctx context.Context) (int64, error)
}

// Sweeper periodically prunes expired translations. The read path already
// treats expired rows as absent, so this is hygiene rather than correctness.
type Sweeper struct {
	Jobs     Pruner
	Rdb      *redis.Client
	Schedule string
	Stop     chan struct{}
	Logger   *log.Logger
	Interval time.Duration // schedule poll interval, default one minute

	lastSweep *time.Time
}

// Start runs the sweeper loop until Stop is closed.
func (s *Sweeper) Start() {
	if s.Logger == nil {
		s.Logger = log.New(log.Writer(), "[SWEEP] ", log.LstdFlags)
	}
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-s.Stop:
				ticker.Stop()
				return
			case <-ticker.C:
				if isDue(s.Schedule, s.lastSweep) {
					s.tick()
				}
			}
		}
	}()
}

func (s *Sweeper) tick() {
	ctx := context.Background()

	// distributed lock so only one instance prunes
	if s.Rdb != nil {
		ok, _ := s.Rdb.SetNX(ctx, "xlate:sweep:lock", "1", 2*time.Minute).Result()
		if !ok {
			return
		}
		defer s.Rdb.Del(ctx, "xlate:sweep:lock")
	}

	removed, err := s.Jobs.DeleteExpiredTranslations(ctx)
	if err != nil {
		s.Logger.Printf("sweep failed: %v", err)
		return
	}
	now := time.Now()
	s.lastSweep = &now
	if removed > 0 {
		s.Logger.Printf("pruned %d expired translations", removed)
	}
}

// isDue determines whether a sweep with the given schedule should run now.
// Supports "@daily", "@hourly", and standard 5-field cron expressions.
func isDue(schedule string, last *time.Time) bool {
	now := time.Now()
	switch schedule {
	case "@daily":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		if last == nil {
			return true
		}
		return now.Sub(*last) >= time.Hour
	default:
		expr, err := cronexpr.Parse(schedule)
		if err != nil {
			if last == nil {
				return true
			}
			return now.Sub(*last) >= time.Hour
		}
		if last == nil {
			return true
		}
		return !expr.Next(*last).After(now)
	}
}
