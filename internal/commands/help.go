package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var helpCmd = &cobra.Command{
	Use:   "help",
	Short: "Show comprehensive help for crewclock",
	Long:  `Display detailed help for all crewclock commands and flags.`,
	Run: func(cmd *cobra.Command, args []string) {
		showCustomHelp()
	},
}

func showCustomHelp() {
	fmt.Print(`
 ██████╗██████╗ ███████╗██╗    ██╗ ██████╗██╗      ██████╗  ██████╗██╗  ██╗
██╔════╝██╔══██╗██╔════╝██║    ██║██╔════╝██║     ██╔═══██╗██╔════╝██║ ██╔╝
██║     ██████╔╝█████╗  ██║ █╗ ██║██║     ██║     ██║   ██║██║     █████╔╝
██║     ██╔══██╗██╔══╝  ██║███╗██║██║     ██║     ██║   ██║██║     ██╔═██╗
╚██████╗██║  ██║███████╗╚███╔███╔╝╚██████╗███████╗╚██████╔╝╚██████╗██║  ██╗
 ╚═════╝╚═╝  ╚═╝╚══════╝ ╚══╝╚══╝  ╚═════╝╚══════╝ ╚═════╝  ╚═════╝╚═╝  ╚═╝

crewclock - shared work sessions for small groups

GROUPS:

  group create <name>     Create a group and join it
    --owner               Your display name (required)
    --qr <file.png>       Also write the invite link as a QR code

  group join <link>       Join from an invite link or a bare group id
    -u, --user            Your display name (required)

  group members           List members of your group
  group leave             Forget the group on this device

SESSIONS:

  session add [task...]   Record a finished session, upload or queue it
    -f, --file            Read a session document (JSON)
    --ended               now, 17:30, dd/mm/yyyy hh:mm, 2 hours ago
    -c, --comment         Comment on the first task
    --no-ui               Skip the interactive form

    Task syntax:
      ~1h30m        Time spent
      #rem-42       Reminder id (same id merges in reports)
      +done         Completed
      @Xcode=50m    Time in an app (_ for spaces)

    Example:
      crewclock session add "Fix login #rem-42 ~1h30m +done @Xcode=50m" "Review ~20m"

  session ls              Browse local sessions
    --days, --no-ui, --json
  session rm <id>         Delete a local session
  session done <task-id>  Mark a task completed (--undo to revert)
  session rename <task-id> <name>

REPORTS:

  report                  Time per task, merged across sessions
    -d, --days            Window in days (default 7, 0 = all)
    --remote              Use the group's record store
    -u, --user            Another member (with --remote)
    --all                 Every member (with --remote)
    --json                JSON output

SYNC:

  sync                    Upload queued sessions now
  status                  Network, pending uploads, remote reachability
  watch                   Live status view (s: sync now, q: quit)
  daemon                  Inbox watcher + background sync until Ctrl+C

ADMIN:

  wipe [--remote]         Delete local sessions (and yours in the group)
  delete-user <name>      Delete a member and their sessions
  reset-remote --yes      Delete everything in the record store
  serve [--addr] [--memory]
                          Host the record store over HTTP

  --config <file>         Config file (default ~/.crewclock/config.toml)
  -v, --verbose           Show info logs

`)
}
