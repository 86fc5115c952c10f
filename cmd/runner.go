package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/example/teesched/internal/browser"
	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/coordinator"
	"github.com/example/teesched/internal/executor"
	"github.com/example/teesched/internal/notify"
	"github.com/example/teesched/internal/task"
)

func newMailer(cfg *config.Config) notify.Mailer {
	if cfg.Notify.SMTPAddr == "" || cfg.Notify.To == "" {
		return notify.Nop{}
	}
	return notify.SMTP{
		Addr:     cfg.Notify.SMTPAddr,
		From:     cfg.Notify.From,
		To:       cfg.Notify.To,
		Username: cfg.Notify.Username,
		Password: cfg.Notify.Password,
	}
}

// newRunner builds the coordinator's runner: one fresh browser per run,
// executed against the task's course page, with the outcome mailed.
func newRunner(cfg *config.Config, log *zap.SugaredLogger) coordinator.Runner {
	mailer := newMailer(cfg)
	return coordinator.RunnerFunc(func(ctx context.Context, t task.Task) error {
		result, err := acquire(ctx, cfg, log, t)
		subject, body := notify.Outcome(t, result.SlotLabel, err)
		if mailErr := mailer.Send(subject, body); mailErr != nil {
			log.Warnw("notify_failed", "id", t.ID, "error", mailErr)
		}
		return err
	})
}

func acquire(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, t task.Task) (executor.Result, error) {
	window, err := t.Params.Window()
	if err != nil {
		return executor.Result{}, fmt.Errorf("task window: %w", err)
	}

	session, err := browser.New(ctx, browser.Options{
		Headless:    cfg.Booking.Headless,
		BlockImages: true,
	})
	if err != nil {
		return executor.Result{}, err
	}

	e := &executor.Executor{
		Session:   session,
		Selectors: executor.DefaultSelectors(),
		Timing:    executor.DefaultTiming(),
		Artifacts: browser.DirSink{Dir: cfg.Artifacts.Dir},
		Log:       log.With("task", t.ID),
	}

	result, err := e.Run(ctx, executor.Params{
		Credentials:         t.Credentials,
		BookingURL:          cfg.Booking.URL(t.Params.Course),
		Course:              t.Params.Course,
		Players:             t.Params.Players,
		Holes:               t.Params.Holes,
		TargetDate:          t.TargetDate,
		Window:              window,
		OpeningInstant:      t.OpeningInstant,
		PrePositionLead:     cfg.Schedule.PrePositionLead,
		AcquireUnknownTimes: cfg.Booking.AcquireUnknownTimes,
	})
	if err != nil {
		// The session stays open so the operator can inspect the page.
		return result, err
	}
	_ = session.Close()
	return result, nil
}
