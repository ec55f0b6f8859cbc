package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/crewclock/internal/models"
	"github.com/balkashynov/crewclock/internal/parser"
	"github.com/balkashynov/crewclock/internal/syncer"
	"github.com/balkashynov/crewclock/internal/tui"
)

var sessionCmd = &cobra.Command{
	Use:     "session",
	Aliases: []string{"s"},
	Short:   "Record and manage finished work sessions",
}

var sessionAddCmd = &cobra.Command{
	Use:   "add [task...]",
	Short: "Record a finished session and upload it",
	Long: `Record a finished work session on this device, then upload it to the
group or queue it until the network is back.

Modes:
  Interactive: crewclock session add (no arguments)
  Quick: crewclock session add "Fix login #rem-42 ~1h30m +done @Xcode=50m" "Review ~20m"
  Document: crewclock session add --file session.json

Task syntax (one argument per task, tasks run back to back):
  ~1h30m        Time spent (90, 45m, 2 hours)
  #id           Reminder id; tasks with the same id merge in reports
  +done         Task was completed
  @App=30m      Time spent in an application (use _ for spaces)`,
	Args: cobra.ArbitraryArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		file, _ := cmd.Flags().GetString("file")
		noUI, _ := cmd.Flags().GetBool("no-ui")

		var doc models.SessionDocument
		switch {
		case file != "":
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", file, err)
			}
			if err := json.Unmarshal(data, &doc); err != nil {
				return fmt.Errorf("failed to parse %s: %w", file, err)
			}
			if doc.Session.EndTime.IsZero() {
				return fmt.Errorf("%s: session has no endTime", file)
			}

		case len(args) == 0 && !noUI:
			session, err := tui.RunSessionForm()
			if err != nil {
				return err
			}
			if session == nil {
				return nil
			}
			doc.Session = *session

		default:
			session, err := sessionFromFlags(cmd, args)
			if err != nil {
				return err
			}
			doc.Session = *session
		}

		coord, err := a.startSync(cmd.Context(), true)
		if err != nil {
			return err
		}

		outcome, err := syncer.Ingest(cmd.Context(), a.store, coord, doc)
		if err != nil {
			return fmt.Errorf("session not uploaded: %w", err)
		}

		switch outcome {
		case syncer.Queued:
			fmt.Printf("📥 Offline - session saved and queued (%d pending)\n", coord.PendingUploadCount())
		default:
			fmt.Printf("✅ Session uploaded - %d task(s)\n", len(doc.Session.Tasks))
		}
		return nil
	}),
}

// sessionFromFlags builds a session from task arguments and flags
func sessionFromFlags(cmd *cobra.Command, args []string) (*models.SessionRecord, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("give at least one task, or drop --no-ui for the interactive form")
	}
	endedStr, _ := cmd.Flags().GetString("ended")
	comment, _ := cmd.Flags().GetString("comment")

	ended, err := parser.ParseEnded(endedStr, time.Now())
	if err != nil {
		return nil, err
	}

	tasks := make([]parser.ParsedTask, 0, len(args))
	for _, arg := range args {
		tasks = append(tasks, parser.ParseTask(arg))
	}
	return parser.BuildSession(tasks, ended, comment)
}

var sessionListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List sessions stored on this device",
	Args:    cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		days, _ := cmd.Flags().GetInt("days")
		noUI, _ := cmd.Flags().GetBool("no-ui")
		asJSON, _ := cmd.Flags().GetBool("json")

		var (
			sessions []models.SessionRecord
			err      error
		)
		if days > 0 {
			sessions, err = a.store.Sessions(days)
		} else {
			sessions, err = a.store.SessionsSince(time.Time{})
		}
		if err != nil {
			return fmt.Errorf("error fetching sessions: %w", err)
		}

		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(sessions)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found. Use 'crewclock session add' to record your first one.")
			return nil
		}

		if !noUI {
			return tui.RunSessionList(sessions)
		}

		// Print table header
		fmt.Printf("%-36s %-17s %-5s %-9s %s\n", "ID", "ENDED", "TASKS", "TIME", "DONE")
		fmt.Println(strings.Repeat("-", 80))
		for _, s := range sessions {
			var total float64
			for _, task := range s.Tasks {
				total += task.TotalSeconds
			}
			fmt.Printf("%-36s %-17s %-5d %-9s %d\n",
				s.ID,
				s.EndTime.Local().Format("02/01/2006 15:04"),
				len(s.Tasks),
				parser.FormatSeconds(total),
				s.CompletedCount)
		}
		return nil
	}),
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "rm <session-id>",
	Short: "Delete a session from this device",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.store.DeleteSession(args[0]); err != nil {
			return err
		}
		fmt.Printf("🗑️  Session %s deleted locally\n", args[0])
		return nil
	}),
}

var taskDoneCmd = &cobra.Command{
	Use:   "done <task-id>",
	Short: "Mark a recorded task as completed (here and in the group)",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		undo, _ := cmd.Flags().GetBool("undo")
		completed := !undo
		return updateTask(cmd, a, args[0], &completed, nil)
	}),
}

var taskRenameCmd = &cobra.Command{
	Use:   "rename <task-id> <name>",
	Short: "Rename a recorded task (here and in the group)",
	Args:  cobra.MinimumNArgs(2),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		name := strings.TrimSpace(strings.Join(args[1:], " "))
		return updateTask(cmd, a, args[0], nil, &name)
	}),
}

// updateTask edits the local copy first, then the remote task summary
func updateTask(cmd *cobra.Command, a *app, taskID string, completed *bool, name *string) error {
	if completed != nil {
		if err := a.store.SetTaskCompleted(taskID, *completed); err != nil {
			return err
		}
	}
	if name != nil {
		if err := a.store.RenameTask(taskID, *name); err != nil {
			return err
		}
	}

	client, err := a.remoteClient()
	if err != nil {
		return err
	}
	ctx, cancel := a.requestContext(cmd.Context())
	defer cancel()
	if err := client.UpdateTaskSummary(ctx, taskID, completed, name); err != nil {
		return fmt.Errorf("local copy updated, remote update failed: %w", err)
	}

	fmt.Printf("✅ Task %s updated\n", taskID)
	return nil
}

func init() {
	sessionAddCmd.Flags().StringP("file", "f", "", "Read a session document (JSON) instead of task arguments")
	sessionAddCmd.Flags().String("ended", "now", "When the session ended (now, 17:30, dd/mm/yyyy hh:mm, 2 hours ago)")
	sessionAddCmd.Flags().StringP("comment", "c", "", "Comment attached to the first task")
	sessionAddCmd.Flags().Bool("no-ui", false, "Skip the interactive form")

	sessionListCmd.Flags().Int("days", 0, "Only sessions from the last N days (0 = all)")
	sessionListCmd.Flags().Bool("no-ui", false, "Simple text output")
	sessionListCmd.Flags().Bool("json", false, "JSON output")

	taskDoneCmd.Flags().Bool("undo", false, "Mark as not completed instead")

	sessionCmd.AddCommand(sessionAddCmd)
	sessionCmd.AddCommand(sessionListCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	sessionCmd.AddCommand(taskDoneCmd)
	sessionCmd.AddCommand(taskRenameCmd)
}
