package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/balkashynov/crewclock/internal/netmon"
	"github.com/balkashynov/crewclock/internal/queue"
	"github.com/balkashynov/crewclock/internal/syncer"
	"github.com/balkashynov/crewclock/internal/tui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload queued sessions now",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		coord, err := a.startSync(cmd.Context(), false)
		if err != nil {
			return err
		}
		if !coord.IsOnline() {
			fmt.Printf("📴 Offline - %d session(s) stay queued\n", coord.PendingUploadCount())
			return nil
		}
		ctx, cancel := a.requestContext(cmd.Context())
		defer cancel()

		res, err := coord.SyncNow(ctx)
		if errors.Is(err, syncer.ErrOffline) {
			fmt.Printf("📴 Went offline - %d session(s) stay queued\n", coord.PendingUploadCount())
			return nil
		}
		if res.Attempted == 0 && err == nil {
			fmt.Println("✅ Nothing to upload")
			return nil
		}
		fmt.Printf("🔄 Uploaded %d of %d queued session(s), %d remaining\n", res.Uploaded, res.Attempted, res.Remaining)
		return err
	}),
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show network state, pending uploads and remote reachability",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		// Read-only: no coordinator, so nothing drains as a side effect
		q := queue.New(a.cfg.QueueFile, a.logger)
		q.Load()

		online := probeOnce(cmd.Context(), netmon.DefaultSource(a.cfg.ProbeInterval.Duration, a.logger), a.cfg.StartTimeout.Duration)
		if online {
			fmt.Println("🌐 Network: Online")
		} else {
			fmt.Println("📴 Network: Offline")
		}
		fmt.Printf("📥 Pending uploads: %d\n", q.Len())

		if m, err := a.membership(); err == nil {
			fmt.Printf("👥 Group: %s as %s\n", m.GroupName, m.UserName)
		} else {
			fmt.Println("👥 Group: none")
		}

		client, err := a.remoteClient()
		if err != nil {
			return err
		}
		ctx, cancel := a.requestContext(cmd.Context())
		defer cancel()
		if err := client.Ping(ctx); err != nil {
			fmt.Printf("☁️  Remote %s: unreachable (%v)\n", a.cfg.Remote, err)
		} else {
			fmt.Printf("☁️  Remote %s: reachable\n", a.cfg.Remote)
		}
		return nil
	}),
}

// probeOnce reads the first reachability state, or reports offline after
// timeout
func probeOnce(ctx context.Context, source netmon.Source, timeout time.Duration) bool {
	m := netmon.New(source, nil)
	if err := m.Start(ctx); err != nil {
		return false
	}
	defer m.Stop()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case ev, ok := <-m.Events():
		return ok && ev.Online
	case <-timer.C:
		return false
	case <-ctx.Done():
		return false
	}
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Live sync status (s syncs now, q quits)",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		m, err := a.membership()
		if err != nil {
			return err
		}
		coord, err := a.startSync(cmd.Context(), true)
		if err != nil {
			return err
		}
		return tui.RunStatusTUI(coord, m.GroupName, m.UserName)
	}),
}

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Watch the inbox and keep the queue drained until interrupted",
	Long: `Run the sync coordinator and the session inbox in the foreground.

Session documents (JSON) dropped into the inbox directory are stored on
this device and uploaded, or queued while offline. Queued sessions are
uploaded when the network comes back and on every drain interval.`,
	Args: cobra.NoArgs,
	Annotations: map[string]string{
		"longRunning": "true",
	},
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		coord, err := a.startSync(ctx, true)
		if err != nil {
			return err
		}

		inbox := syncer.NewInbox(a.cfg.InboxDir, a.store, coord, a.logger)
		fmt.Printf("👀 Watching %s (%s, %d pending)\n", a.cfg.InboxDir, coord.NetworkStatus(), coord.PendingUploadCount())

		if err := inbox.Run(ctx); err != nil {
			return err
		}
		fmt.Println("👋 Stopped")
		return nil
	}),
}
