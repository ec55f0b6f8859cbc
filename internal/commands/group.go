package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	"github.com/balkashynov/crewclock/internal/remote"
	"github.com/balkashynov/crewclock/internal/tui"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Create, join and inspect work groups",
}

var groupCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a group and join it as its owner",
	Long: `Create a group in the shared record store and join it on this device.

Prints the invitation link other members pass to 'crewclock group join'.
With --qr the link is also written as a QR code PNG.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		name := strings.TrimSpace(strings.Join(args, " "))
		owner, _ := cmd.Flags().GetString("owner")
		qrFile, _ := cmd.Flags().GetString("qr")
		if owner == "" {
			return fmt.Errorf("--owner is required")
		}

		client, err := a.remoteClient()
		if err != nil {
			return err
		}
		ctx, cancel := a.requestContext(cmd.Context())
		defer cancel()

		link, groupID, err := client.CreateGroup(ctx, owner, name)
		if err != nil {
			return err
		}
		if _, err := client.UpsertMember(ctx, groupID, owner); err != nil {
			return fmt.Errorf("group created but joining it failed: %w", err)
		}
		if _, err := a.store.JoinGroup(groupID, name, owner); err != nil {
			return err
		}

		fmt.Printf("✅ Group \"%s\" created - ID: %s\n", name, groupID)
		fmt.Printf("🔗 Invite link: %s\n", link)

		if qrFile != "" {
			if err := qrcode.WriteFile(link, qrcode.Medium, 256, qrFile); err != nil {
				return fmt.Errorf("failed to write QR code: %w", err)
			}
			fmt.Printf("📷 QR code written to %s\n", qrFile)
		}
		return nil
	}),
}

var groupJoinCmd = &cobra.Command{
	Use:   "join <link|group-id>",
	Short: "Join a group from an invitation link",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		user, _ := cmd.Flags().GetString("user")
		if user == "" {
			return fmt.Errorf("--user is required")
		}

		groupID, err := remote.ParseShareLink(args[0])
		if err != nil {
			return err
		}

		client, err := a.remoteClient()
		if err != nil {
			return err
		}
		ctx, cancel := a.requestContext(cmd.Context())
		defer cancel()

		group, err := client.FetchGroup(ctx, groupID)
		if errors.Is(err, remote.ErrRecordNotFound) || errors.Is(err, remote.ErrNamespaceMissing) {
			return fmt.Errorf("no group with id %s", groupID)
		}
		if err != nil {
			return err
		}

		if _, err := client.UpsertMember(ctx, groupID, user); err != nil {
			return err
		}
		if _, err := a.store.JoinGroup(groupID, group.Name, user); err != nil {
			return err
		}

		fmt.Printf("✅ Joined \"%s\" as %s\n", group.Name, user)
		return nil
	}),
}

var groupMembersCmd = &cobra.Command{
	Use:   "members",
	Short: "List the members of the current group",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
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

		members, err := client.FetchGroupMembers(ctx, m.GroupID)
		if err != nil {
			return err
		}
		fmt.Print(tui.RenderMembers(m.GroupName, members, m.UserName))
		return nil
	}),
}

var groupLeaveCmd = &cobra.Command{
	Use:   "leave",
	Short: "Forget the group on this device (remote data is kept)",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		if err := a.store.LeaveGroup(); err != nil {
			return err
		}
		fmt.Println("👋 Left the group. Local sessions are kept.")
		return nil
	}),
}

func init() {
	groupCreateCmd.Flags().String("owner", "", "Your display name in the group")
	groupCreateCmd.Flags().String("qr", "", "Also write the invite link as a QR code PNG")
	groupJoinCmd.Flags().StringP("user", "u", "", "Your display name in the group")

	groupCmd.AddCommand(groupCreateCmd)
	groupCmd.AddCommand(groupJoinCmd)
	groupCmd.AddCommand(groupMembersCmd)
	groupCmd.AddCommand(groupLeaveCmd)
}
