package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-pluginhost/internal/app"
	"github.com/yanizio/adept-pluginhost/internal/plugin"
)

var (
	cronJob  string
	cronSite int64
)

var cronRunCmd = &cobra.Command{
	Use:   "cron:run",
	Short: "Run a single plugin job once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		site, err := siteFlag(cmd, cronSite)
		if err != nil {
			return err
		}

		a, err := app.Boot(cmd.Context(), plugin.All())
		if err != nil {
			return err
		}
		defer a.Close()

		rep, err := a.RunJob(cmd.Context(), cronJob, site)
		if err != nil {
			return err
		}
		if rep.Err != nil {
			return rep.Err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "job %s: %d invocation(s), %d fault(s)\n",
			rep.Job, rep.Invocations, len(rep.Faults))
		for _, f := range rep.Faults {
			fmt.Fprintf(cmd.OutOrStdout(), "  %v\n", f)
		}
		if len(rep.Faults) > 0 {
			return fmt.Errorf("%d invocation(s) failed", len(rep.Faults))
		}
		return nil
	},
}

func init() {
	cronRunCmd.Flags().StringVarP(&cronJob, "job", "j", "", "job name")
	cronRunCmd.Flags().Int64Var(&cronSite, "site", 0, "restrict a per-site job to one site id")
	_ = cronRunCmd.MarkFlagRequired("job")
	rootCmd.AddCommand(cronRunCmd)
}
