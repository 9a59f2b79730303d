package commands

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zaphchat/zaphbot/pkg/zaphbot/schedule"
	"github.com/zaphchat/zaphbot/pkg/zaphbot/store"
)

// newScheduleCmd creates the `zaphbot schedule` command for inspecting and
// managing the deferred delivery queue. Operates directly on the database,
// so it works whether or not the bot is running.
func newScheduleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "Manage scheduled reminders",
		Long: `Inspect and manage the queue of deferred deliveries.

Examples:
  zaphbot schedule list
  zaphbot schedule add <chat-id> "take out the trash" --at "2026-09-01T09:00:00Z"
  zaphbot schedule remove <id>`,
	}

	cmd.AddCommand(
		newScheduleListCmd(),
		newScheduleAddCmd(),
		newScheduleRemoveCmd(),
	)

	return cmd
}

func newScheduleListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pending reminders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			db, jobs, err := openJobStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			pending, err := jobs.Pending(context.Background())
			if err != nil {
				return fmt.Errorf("listing jobs: %w", err)
			}
			if len(pending) == 0 {
				fmt.Println("No pending reminders.")
				return nil
			}
			for _, j := range pending {
				kind := "literal"
				if j.Generate {
					kind = "generated"
				}
				fmt.Printf("%s  %s  %s  [%s] %s\n",
					j.ID, j.FireTime.Local().Format(time.RFC3339), j.ChatID, kind, j.Payload)
			}
			return nil
		},
	}
}

func newScheduleAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <chat-id> <message>",
		Short: "Add a reminder for later delivery",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			at, _ := cmd.Flags().GetString("at")
			fireTime, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("parsing --at (RFC3339 expected): %w", err)
			}
			generate, _ := cmd.Flags().GetBool("generate")
			userID, _ := cmd.Flags().GetString("user-id")
			if userID == "" {
				userID = args[0]
			}

			db, jobs, err := openJobStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			job := &schedule.Job{
				ChatID:   args[0],
				UserID:   userID,
				Payload:  args[1],
				Generate: generate,
				FireTime: fireTime,
			}
			if err := jobs.Add(context.Background(), job); err != nil {
				return fmt.Errorf("adding job: %w", err)
			}
			fmt.Printf("Scheduled %s for %s\n", job.ID, fireTime.Local().Format(time.RFC3339))
			return nil
		},
	}

	cmd.Flags().String("at", "", "delivery time in RFC3339 (required)")
	cmd.Flags().Bool("generate", false, "treat the message as a generation prompt resolved at fire time")
	cmd.Flags().String("user-id", "", "identity whose memory steers generation (defaults to chat-id)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func newScheduleRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a reminder",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, jobs, err := openJobStore(cmd)
			if err != nil {
				return err
			}
			defer db.Close()

			if err := jobs.Remove(context.Background(), args[0]); err != nil {
				return fmt.Errorf("removing job: %w", err)
			}
			fmt.Printf("Reminder %s removed.\n", args[0])
			return nil
		},
	}
}

// openJobStore opens the configured database and returns the job store.
// The caller closes the database.
func openJobStore(cmd *cobra.Command) (*sql.DB, schedule.Store, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening database: %w", err)
	}
	return db, schedule.NewSQLiteStore(db), nil
}
