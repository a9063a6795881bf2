// cmd/web/main.go
//
// Plugin host – CLI entry point.
//
// Commands
// --------
//
//	web [serve]                            – HTTP server plus cron scheduler.
//	web cron:run --job <name> [--site id]  – fire one job once and exit.
//	web plugins                            – load plugins, print status.
//	web token:issue --sub … --role …       – sign a dev credential.
//
// Plugins are compiled in.  Each one is blank-imported below and adds
// itself to plugin.All() from its init() function.
//
// Notes
// -----
// • SIGINT and SIGTERM cancel the root context; serve shuts down
//   gracefully.
// • Oxford commas, two spaces after periods.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-pluginhost/internal/app"
	"github.com/yanizio/adept-pluginhost/internal/plugin"

	_ "github.com/yanizio/adept-pluginhost/plugins/helloworld" // first-party demo plugin
)

var rootCmd = &cobra.Command{
	Use:           "web",
	Short:         "Multi-tenant plugin host",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server and cron scheduler",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := app.Boot(cmd.Context(), plugin.All())
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(cmd.Context())
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
