package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/yanizio/adept-pluginhost/internal/app"
	"github.com/yanizio/adept-pluginhost/internal/plugin"
)

var pluginsCmd = &cobra.Command{
	Use:   "plugins",
	Short: "Load every compiled-in plugin and print its status",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := app.Boot(cmd.Context(), plugin.All())
		if err != nil {
			return err
		}
		defer a.Close()

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PLUGIN\tSTATE\tROUTES\tJOBS\tTABLES\tERROR")
		for _, st := range a.Registry.Plugins() {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%s\n",
				st.Slug, st.State, len(st.Routes), len(st.Jobs), strings.Join(st.Tables, ","), st.Error)
		}
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "METHOD\tPATH\tPLUGIN\tALL SITES\tGLOBAL ONLY\tROLES")
		for _, rt := range a.RouteInfo() {
			roles := make([]string, len(rt.Roles))
			for i, r := range rt.Roles {
				roles[i] = string(r)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%t\t%t\t%s\n",
				rt.Method, rt.Path, rt.Plugin, rt.AllSites, rt.GlobalOnly, strings.Join(roles, ","))
		}
		return tw.Flush()
	},
}

func init() {
	rootCmd.AddCommand(pluginsCmd)
}
