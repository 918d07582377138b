package run

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/mroizo75/hmsnovaeng-sub004/pkg/logx"
)

// TriggerConfig configures the cron trigger.
type TriggerConfig struct {
	// Spec is a standard 5-field cron expression, e.g. "0 2 * * *".
	Spec string
	// Timezone names the IANA zone the spec is evaluated in. Empty means
	// the host's local zone.
	Timezone string
}

// Trigger fires the runner on a cron schedule.
//
// Overlap and same-date duplicates are handled inside the runner; the
// trigger just logs the skip at debug level.
type Trigger struct {
	runner *Runner
	cfg    TriggerConfig
	log    logx.Logger

	mu   sync.Mutex
	cron *cron.Cron
	ctx  context.Context
}

func NewTrigger(runner *Runner, cfg TriggerConfig, log logx.Logger) (*Trigger, error) {
	if runner == nil {
		return nil, errors.New("trigger: runner is required")
	}
	if cfg.Spec == "" {
		return nil, errors.New("trigger: cron spec is required")
	}
	if _, err := cron.ParseStandard(cfg.Spec); err != nil {
		return nil, fmt.Errorf("trigger: invalid cron spec %q: %w", cfg.Spec, err)
	}
	return &Trigger{runner: runner, cfg: cfg, log: log}, nil
}

// Start begins firing. ctx bounds the executions the trigger launches.
func (t *Trigger) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.cron != nil {
		return errors.New("trigger: already started")
	}

	loc := time.Local
	if t.cfg.Timezone != "" {
		l, err := time.LoadLocation(t.cfg.Timezone)
		if err != nil {
			return fmt.Errorf("trigger: timezone %q: %w", t.cfg.Timezone, err)
		}
		loc = l
	}

	c := cron.New(cron.WithLocation(loc))
	t.ctx = ctx
	if _, err := c.AddFunc(t.cfg.Spec, t.fire); err != nil {
		return fmt.Errorf("trigger: schedule: %w", err)
	}
	c.Start()
	t.cron = c
	t.log.Info("trigger started",
		logx.String("spec", t.cfg.Spec),
		logx.String("timezone", loc.String()))
	return nil
}

func (t *Trigger) fire() {
	t.mu.Lock()
	ctx := t.ctx
	t.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	if _, err := t.runner.RunOnce(ctx, time.Now()); err != nil {
		switch {
		case errors.Is(err, ErrOverlap), errors.Is(err, ErrAlreadyCompleted):
			t.log.Debug("trigger skipped", logx.Err(err))
		default:
			t.log.Error("scheduled run failed", logx.Err(err))
		}
	}
}

// Stop halts future fires and waits for any job the cron library is still
// invoking to return.
func (t *Trigger) Stop() {
	t.mu.Lock()
	c := t.cron
	t.cron = nil
	t.mu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	t.log.Info("trigger stopped")
}
