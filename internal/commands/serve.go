package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/balkashynov/crewclock/internal/remote"
	"github.com/balkashynov/crewclock/internal/remote/memstore"
	"github.com/balkashynov/crewclock/internal/remote/sqlstore"
	"github.com/balkashynov/crewclock/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host the group record store over HTTP",
	Long: `Serve the record store other devices point their 'remote' setting at
(for example remote = "http://host:7420").

Records live in the server database unless --memory is given.`,
	Args: cobra.NoArgs,
	Annotations: map[string]string{
		"longRunning": "true",
	},
	RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
		addr, _ := cmd.Flags().GetString("addr")
		inMemory, _ := cmd.Flags().GetBool("memory")
		if addr == "" {
			addr = a.cfg.ServerAddr
		}

		var backend remote.Backend
		if inMemory {
			backend = memstore.New()
		} else {
			s, err := sqlstore.Open(a.cfg.ServerDB)
			if err != nil {
				return err
			}
			defer s.Close()
			backend = s
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Printf("🛰️  Serving records on http://%s\n", addr)
		return server.New(backend, addr, a.logger).Start(ctx)
	}),
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (default from config)")
	serveCmd.Flags().Bool("memory", false, "Keep records in memory only")
}
