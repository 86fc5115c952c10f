package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/example/teesched/internal/config"
	"github.com/example/teesched/internal/registry"
)

// task manages acquisition tasks through a running registry server.
func newTaskCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "task",
		Short: "Manage acquisition tasks via the registry API",
	}
	cmd.AddCommand(newTaskCreateCmd())
	cmd.AddCommand(newTaskListCmd())
	cmd.AddCommand(newTaskShowCmd())
	cmd.AddCommand(newTaskCancelCmd())
	return cmd
}

func registryClient(cfg *config.Config) (*registry.Client, error) {
	url := cfg.Server.RegistryURL
	if url == "" {
		url = "http://" + cfg.Server.Address()
	}
	return registry.NewClient(url, cfg.Security.Token), nil
}

func newTaskCreateCmd() *cobra.Command {
	var (
		course     int
		players    int
		holes      int
		timeStart  string
		timeEnd    string
		targetDate string
		opensDate  string
		openHour   int
		openMinute int
	)

	c := &cobra.Command{
		Use:   "create",
		Short: "Create a task that fires when slots open",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			username := os.Getenv("TEESCHED_USERNAME")
			password := os.Getenv("TEESCHED_PASSWORD")
			if username == "" || password == "" {
				return fmt.Errorf("set TEESCHED_USERNAME and TEESCHED_PASSWORD")
			}

			client, err := registryClient(cfg)
			if err != nil {
				return err
			}
			created, err := client.Create(context.Background(), registry.CreateTask{
				Username:   username,
				Password:   password,
				Course:     course,
				Players:    players,
				Holes:      holes,
				TimeStart:  timeStart,
				TimeEnd:    timeEnd,
				TargetDate: targetDate,
				OpensDate:  opensDate,
				OpenHour:   openHour,
				OpenMinute: openMinute,
			})
			if err != nil {
				return err
			}
			fmt.Printf("created %s (fires %s)\n", created.ID, created.OpeningInstant.Local().Format("2006-01-02 15:04:05 MST"))
			return nil
		},
	}

	c.Flags().IntVar(&course, "course", 3, "course ID")
	c.Flags().IntVar(&players, "players", 4, "number of players")
	c.Flags().IntVar(&holes, "holes", 18, "holes (9 or 18)")
	c.Flags().StringVar(&timeStart, "time-start", "07:00", "earliest acceptable slot time")
	c.Flags().StringVar(&timeEnd, "time-end", "18:00", "latest acceptable slot time")
	c.Flags().StringVar(&targetDate, "date", "", "date to book (YYYY-MM-DD)")
	c.Flags().StringVar(&opensDate, "opens-date", "", "date slots open (YYYY-MM-DD); empty means today")
	c.Flags().IntVar(&openHour, "open-hour", 6, "civil hour slots open")
	c.Flags().IntVar(&openMinute, "open-minute", 30, "civil minute slots open")

	return c
}

func newTaskListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := registryClient(cfg)
			if err != nil {
				return err
			}
			tasks, err := client.List(context.Background())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tOPENS\tCOURSE\tWINDOW\tERROR")
			for _, t := range tasks {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s-%s\t%s\n",
					t.ID, t.Status, t.OpeningInstant.Local().Format("2006-01-02 15:04"),
					t.Params.Course, t.Params.TimeStart, t.Params.TimeEnd, t.LastError)
			}
			return w.Flush()
		},
	}
}

func newTaskShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one task as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := registryClient(cfg)
			if err != nil {
				return err
			}
			t, err := client.Get(context.Background(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(t)
		},
	}
}

func newTaskCancelCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a pending or finished task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			client, err := registryClient(cfg)
			if err != nil {
				return err
			}
			if err := client.Delete(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("cancelled %s\n", args[0])
			return nil
		},
	}
}
