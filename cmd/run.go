package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/browser"
	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/executor"
	"github.com/example/teesched/internal/inspect"
	"github.com/example/teesched/internal/registry"
	"github.com/example/teesched/internal/task"
	"github.com/example/teesched/internal/trigger"
)

// run performs a single acquisition immediately, without the registry.
// Credentials come from TEESCHED_USERNAME / TEESCHED_PASSWORD so they never
// appear in shell history.
func newRunCmd() *cobra.Command {
	var (
		course     int
		players    int
		holes      int
		timeStart  string
		timeEnd    string
		targetDate string
		openAt     string
		audit      bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one acquisition now (no registry)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig()
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if audit {
				return auditSelectors(ctx, cfg, course)
			}

			username := os.Getenv("TEESCHED_USERNAME")
			password := os.Getenv("TEESCHED_PASSWORD")
			if username == "" || password == "" {
				return fmt.Errorf("set TEESCHED_USERNAME and TEESCHED_PASSWORD")
			}

			now := time.Now()
			opening := now
			if openAt != "" {
				var h, m int
				if _, err := fmt.Sscanf(openAt, "%d:%d", &h, &m); err != nil {
					return fmt.Errorf("invalid --open-at (want HH:MM): %w", err)
				}
				opening, err = registry.DeriveOpening(cfg.Zone, "", h, m, now, trigger.DefaultLateTolerance)
				if err != nil {
					return err
				}
			}

			t := task.Task{
				ID:          task.NewID(),
				Credentials: task.Credentials{Username: username, Password: password},
				Params: task.Parameters{
					Course:    course,
					Players:   players,
					Holes:     holes,
					TimeStart: timeStart,
					TimeEnd:   timeEnd,
				},
				TargetDate:     targetDate,
				OpeningInstant: opening,
			}
			if err := t.Validate(); err != nil {
				return err
			}

			if wait := opening.Sub(now); wait > 0 {
				log.Infow("waiting_for_opening", "opening", opening, "wait", wait)
			}

			result, err := acquire(ctx, cfg, log, t)
			if err != nil {
				return err
			}
			log.Infow("acquired", "slot", result.SlotLabel)
			return nil
		},
	}

	cmd.Flags().IntVar(&course, "course", 3, "course ID")
	cmd.Flags().IntVar(&players, "players", 4, "number of players")
	cmd.Flags().IntVar(&holes, "holes", 18, "holes (9 or 18)")
	cmd.Flags().StringVar(&timeStart, "time-start", "07:00", "earliest acceptable slot time")
	cmd.Flags().StringVar(&timeEnd, "time-end", "18:00", "latest acceptable slot time")
	cmd.Flags().StringVar(&targetDate, "date", "", "date to book (YYYY-MM-DD); empty keeps the site default")
	cmd.Flags().StringVar(&openAt, "open-at", "", "civil time slots open (HH:MM); empty means now")
	cmd.Flags().BoolVar(&audit, "audit", false, "probe the booking page's selector chains and exit")

	return cmd
}

// auditSelectors loads the booking page anonymously and reports which
// matchers in each chain resolve, so markup drift is caught ahead of an
// opening.
func auditSelectors(ctx context.Context, cfg *config.Config, course int) error {
	session, err := browser.New(ctx, browser.Options{Headless: cfg.Booking.Headless})
	if err != nil {
		return err
	}
	defer session.Close()

	if err := session.Navigate(ctx, cfg.Booking.URL(course)); err != nil {
		return err
	}
	checks, err := inspect.AuditSelectors(ctx, session, executor.DefaultSelectors())
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CONCERN\tSELECTOR\tPRESENT")
	for _, c := range checks {
		fmt.Fprintf(w, "%s\t%s\t%v\n", c.Concern, c.Selector, c.Present)
	}
	return w.Flush()
}
