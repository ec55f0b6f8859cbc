package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/crewclock/internal/aggregate"
	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/tui"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Show time per task, merged across sessions",
	Long: `Show merged per-task summaries for the last N days.

By default the report is built from sessions stored on this device.
  --remote       build it from the group's record store instead
  --user NAME    with --remote, report another member
  --all          with --remote, one report per group member`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		days, _ := cmd.Flags().GetInt("days")
		fromRemote, _ := cmd.Flags().GetBool("remote")
		user, _ := cmd.Flags().GetString("user")
		all, _ := cmd.Flags().GetBool("all")
		asJSON, _ := cmd.Flags().GetBool("json")

		subtitle := fmt.Sprintf("last %d day(s)", days)
		if days <= 0 {
			subtitle = "all time"
		}

		if !fromRemote {
			tasks, completed, err := localSummaries(a, days)
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(map[string]any{"tasks": tasks, "completedCount": completed})
			}
			fmt.Print(tui.RenderReport(tui.ReportView{
				Title:          "🖥️  This device",
				Subtitle:       subtitle,
				Tasks:          tasks,
				CompletedCount: completed,
				Width:          80,
			}))
			return nil
		}

		m, err := a.membership()
		if err != nil {
			return err
		}
		client, err := a.remoteClient()
		if err != nil {
			return err
		}
		ctx, cancel := a.requestContext(cmd.Context())
		defer cancel()

		if all {
			byUser, err := client.FetchAllGroupData(ctx, m.GroupID)
			if err != nil {
				return err
			}
			tasks, completed := mergeByUser(byUser, days, time.Now())
			if asJSON {
				return printJSON(map[string]any{"tasks": tasks, "completedCount": completed})
			}
			fmt.Print(tui.RenderGroupReport(m.GroupName+" · "+subtitle, tasks, completed, 80))
			return nil
		}

		if user == "" {
			user = m.UserName
		}
		tasks, completed, err := client.FetchUserSummaries(ctx, m.GroupID, user, days)
		if err != nil {
			return err
		}
		if asJSON {
			return printJSON(map[string]any{"tasks": tasks, "completedCount": completed})
		}
		fmt.Print(tui.RenderReport(tui.ReportView{
			Title:          "👤 " + user,
			Subtitle:       m.GroupName + " · " + subtitle,
			Tasks:          tasks,
			CompletedCount: completed,
			Width:          80,
		}))
		return nil
	}),
}

// localSummaries merges this device's sessions; days <= 0 means all of them
func localSummaries(a *app, days int) ([]aggregate.TaskSummary, int, error) {
	if days > 0 {
		return a.store.Summaries(days)
	}
	sessions, err := a.store.SessionsSince(time.Time{})
	if err != nil {
		return nil, 0, err
	}
	report := aggregate.Merge(sessions)
	return report.Tasks, report.CompletedCount, nil
}

// mergeByUser merges each member's sessions that ended inside the window.
// days <= 0 keeps every session.
func mergeByUser(byUser map[string][]models.SessionRecord, days int, now time.Time) (map[string][]aggregate.TaskSummary, map[string]int) {
	var since time.Time
	if days > 0 {
		since = aggregate.Since(now, days)
	}

	tasks := make(map[string][]aggregate.TaskSummary, len(byUser))
	completed := make(map[string]int, len(byUser))
	for user, sessions := range byUser {
		var window []models.SessionRecord
		for _, s := range sessions {
			if !s.EndTime.Before(since) {
				window = append(window, s)
			}
		}
		report := aggregate.Merge(window)
		tasks[user] = report.Tasks
		completed[user] = report.CompletedCount
	}
	return tasks, completed
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func init() {
	reportCmd.Flags().IntP("days", "d", 7, "Number of days to include, today counted (0 = all)")
	reportCmd.Flags().Bool("remote", false, "Build the report from the group's record store")
	reportCmd.Flags().StringP("user", "u", "", "Member to report on (with --remote)")
	reportCmd.Flags().Bool("all", false, "Report every member (with --remote)")
	reportCmd.Flags().Bool("json", false, "JSON output")
}
