package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/balkashynov/crewclock/internal/queue"
)

var wipeCmd = &cobra.Command{
	Use:   "wipe",
	Short: "Delete every session stored on this device",
	Long: `Delete every session stored on this device and the pending upload queue.

With --remote your own sessions and member record are deleted from the
group as well.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		withRemote, _ := cmd.Flags().GetBool("remote")

		if withRemote {
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
			if err := client.DeleteUserData(ctx, m.GroupID, m.UserName); err != nil {
				return fmt.Errorf("remote wipe failed, local data kept: %w", err)
			}
			fmt.Printf("☁️  Removed %s from %s\n", m.UserName, m.GroupName)
		}

		if err := a.store.WipeAll(); err != nil {
			return err
		}
		q := queue.New(a.cfg.QueueFile, a.logger)
		q.Clear()

		fmt.Println("🧹 Local sessions and pending uploads deleted")
		return nil
	}),
}

var deleteUserCmd = &cobra.Command{
	Use:   "delete-user <name>",
	Short: "Delete a member and all their sessions from the group",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		m, err := a.membership()
		if err != nil {
			return err
		}
		coord, err := a.startSync(cmd.Context(), false)
		if err != nil {
			return err
		}
		ctx, cancel := a.requestContext(cmd.Context())
		defer cancel()

		if err := coord.DeleteUserData(ctx, m.GroupID, args[0]); err != nil {
			return err
		}
		fmt.Printf("🗑️  Deleted %s and their sessions from %s\n", args[0], m.GroupName)
		return nil
	}),
}

var resetRemoteCmd = &cobra.Command{
	Use:   "reset-remote",
	Short: "Delete every group and session in the record store",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			return fmt.Errorf("this deletes the data of every group in %s; rerun with --yes", a.cfg.Remote)
		}

		coord, err := a.startSync(cmd.Context(), false)
		if err != nil {
			return err
		}
		ctx, cancel := a.requestContext(cmd.Context())
		defer cancel()

		if err := coord.ResetAllRemoteData(ctx); err != nil {
			return err
		}
		fmt.Println("💥 Remote store reset, pending queue cleared")
		return nil
	}),
}

func init() {
	wipeCmd.Flags().Bool("remote", false, "Also delete your data from the group")
	resetRemoteCmd.Flags().Bool("yes", false, "Confirm the reset")
}
