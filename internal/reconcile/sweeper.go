package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/robfig/cron/v3"
)

// SweepFunc runs one pass over all member channels.
type SweepFunc func(ctx context.Context) (SweepResult, error)

// Sweeper runs a SweepFunc on a cron schedule. A run still in progress when
// the next one is due makes the next one a skip.
type Sweeper struct {
	sweep  SweepFunc
	logger *slog.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
}

func NewSweeper(sweep SweepFunc, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{sweep: sweep, logger: logger}
}

// Start schedules sweeps using a standard five-field cron spec or a
// descriptor such as "@every 6h".
func (s *Sweeper) Start(spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("parse scan schedule %q: %w", spec, err)
	}

	cl := cronLogger{s.logger}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))
	ctx, cancel := context.WithCancel(context.Background())
	if _, err := c.AddFunc(spec, func() { s.run(ctx) }); err != nil {
		cancel()
		return fmt.Errorf("schedule sweep: %w", err)
	}
	c.Start()

	s.cron, s.cancel = c, cancel
	s.logger.Info("history sweep scheduled", slog.String("schedule", spec))
	return nil
}

// Stop cancels a running sweep and waits for it to return.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	cancel()
	<-c.Stop().Done()
}

func (s *Sweeper) run(ctx context.Context) {
	res, err := s.sweep(ctx)
	if err != nil {
		s.logger.Error("scheduled sweep failed", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("scheduled sweep finished",
		slog.Int("channels", res.Channels),
		slog.Int("created", res.Created()),
	)
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct{ l *slog.Logger }

func (c cronLogger) Info(msg string, kv ...interface{}) {
	c.l.Debug("cron: "+msg, kv...)
}

func (c cronLogger) Error(err error, msg string, kv ...interface{}) {
	c.l.Error("cron: "+msg, append([]interface{}{slog.String("error", err.Error())}, kv...)...)
}
