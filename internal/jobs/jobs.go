// Package jobs запускает периодические задачи обслуживания по расписанию cron.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"

	"clouddrive/internal/logs"
)

type TokenCleaner interface {
	CleanupStale(ctx context.Context) (int64, error)
}

type TrashPurger interface {
	PurgeExpiredTrash(ctx context.Context, retention time.Duration) (int, error)
}

type LimiterCleaner interface {
	Cleanup(idle time.Duration) int
}

type Config struct {
	// TrashRetention - сколько элемент лежит в корзине до удаления. 0 отключает задачу.
	TrashRetention time.Duration
	// LimiterIdle - через сколько простоя забываются счетчики лимитера.
	LimiterIdle time.Duration
	// Timeout ограничивает один запуск задачи.
	Timeout time.Duration
}

type Scheduler struct {
	cron    *cron.Cron
	cfg     Config
	tokens  TokenCleaner
	trash   TrashPurger
	limiter LimiterCleaner
	log     *logrus.Entry
}

// New собирает планировщик. trash и limiter могут быть nil.
func New(cfg Config, tokens TokenCleaner, trash TrashPurger, limiter LimiterCleaner) *Scheduler {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Minute
	}
	if cfg.LimiterIdle <= 0 {
		cfg.LimiterIdle = 30 * time.Minute
	}
	return &Scheduler{
		cron:    cron.New(),
		cfg:     cfg,
		tokens:  tokens,
		trash:   trash,
		limiter: limiter,
		log:     logs.WithComponent("jobs"),
	}
}

// Register добавляет задачи в расписание. Возвращает имена добавленных задач.
func (s *Scheduler) Register() ([]string, error) {
	type job struct {
		name string
		spec string
		run  func(ctx context.Context) error
	}

	list := []job{{name: "token-cleanup", spec: "@hourly", run: s.CleanupTokens}}
	if s.trash != nil && s.cfg.TrashRetention > 0 {
		list = append(list, job{name: "trash-purge", spec: "@every 1h", run: s.PurgeTrash})
	}
	if s.limiter != nil {
		list = append(list, job{name: "limiter-cleanup", spec: "@every 10m", run: s.CleanupLimiter})
	}

	var names []string
	for _, j := range list {
		j := j
		if err := s.cron.AddFunc(j.spec, func() { s.run(j.name, j.run) }); err != nil {
			return nil, fmt.Errorf("failed to schedule %s: %w", j.name, err)
		}
		names = append(names, j.name)
	}
	return names, nil
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Timeout)
	defer cancel()

	start := time.Now()
	if err := fn(ctx); err != nil {
		s.log.WithError(err).WithField("job", name).Error("job failed")
		return
	}
	s.log.WithFields(logrus.Fields{"job": name, "duration": time.Since(start)}).Debug("job finished")
}

func (s *Scheduler) CleanupTokens(ctx context.Context) error {
	_, err := s.tokens.CleanupStale(ctx)
	return err
}

func (s *Scheduler) PurgeTrash(ctx context.Context) error {
	n, err := s.trash.PurgeExpiredTrash(ctx, s.cfg.TrashRetention)
	if err != nil {
		return err
	}
	if n > 0 {
		s.log.WithField("items", n).Info("purged expired trash")
	}
	return nil
}

func (s *Scheduler) CleanupLimiter(context.Context) error {
	if n := s.limiter.Cleanup(s.cfg.LimiterIdle); n > 0 {
		s.log.WithField("keys", n).Debug("dropped idle rate limit buckets")
	}
	return nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает расписание. Уже запущенные задачи не прерываются.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
