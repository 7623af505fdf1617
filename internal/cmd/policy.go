package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lumenchat/governor/internal/config"
)

var policyCmd = &cobra.Command{
	Use:   "policy",
	Short: "Inspect configured rate limit policies",
}

var policyListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the rate limit policies and route rules in effect",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Policy", "Window", "Max Requests", "Scope"})
		for _, p := range cfg.RateLimit.Policies {
			t.AppendRow(table.Row{p.Name, p.Window, p.MaxRequests, p.Scope})
		}
		fmt.Fprintln(cmd.OutOrStdout(), t.Render())

		rules := table.NewWriter()
		rules.SetStyle(table.StyleRounded)
		rules.AppendHeader(table.Row{"Route Prefix", "Policies"})
		for _, r := range cfg.RateLimit.Rules {
			rules.AppendRow(table.Row{r.Prefix, strings.Join(r.Policies, ", ")})
		}
		fmt.Fprintln(cmd.OutOrStdout(), rules.Render())
		return nil
	},
}

func init() {
	policyCmd.AddCommand(policyListCmd)
	rootCmd.AddCommand(policyCmd)
}
