package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/lumenchat/governor/internal/config"
)

var (
	limitsPrefix string
	resetYes     bool
)

var limitsCmd = &cobra.Command{
	Use:   "limits",
	Short: "Inspect and reset live rate limit counters",
	Long:  "Operate on the window counters in the redis counter store. Requires redis.addr to be configured.",
}

var limitsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List live window counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := limitsClient()
		if err != nil {
			return err
		}
		defer rdb.Close() // nolint:errcheck // best-effort cleanup

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		t := table.NewWriter()
		t.SetStyle(table.StyleRounded)
		t.AppendHeader(table.Row{"Key", "Count", "Resets In"})

		var listed int
		iter := rdb.Scan(ctx, 0, scanPattern(), 100).Iterator()
		for iter.Next(ctx) {
			key := iter.Val()
			count, err := rdb.Get(ctx, key).Result()
			if err != nil {
				continue // expired between scan and get
			}
			ttl, err := rdb.PTTL(ctx, key).Result()
			if err != nil {
				continue
			}
			t.AppendRow(table.Row{key, count, ttl.Round(time.Millisecond)})
			listed++
		}
		if err := iter.Err(); err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		fmt.Fprintf(cmd.OutOrStdout(), "%d live counter(s)\n", listed)
		return nil
	},
}

var limitsResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete live window counters, restoring full quota",
	RunE: func(cmd *cobra.Command, args []string) error {
		if !resetYes {
			return fmt.Errorf("refusing to delete counters without --yes")
		}

		rdb, err := limitsClient()
		if err != nil {
			return err
		}
		defer rdb.Close() // nolint:errcheck // best-effort cleanup

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		var deleted int64
		iter := rdb.Scan(ctx, 0, scanPattern(), 100).Iterator()
		for iter.Next(ctx) {
			n, err := rdb.Del(ctx, iter.Val()).Result()
			if err != nil {
				return err
			}
			deleted += n
		}
		if err := iter.Err(); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d counter(s)\n", deleted)
		return nil
	},
}

// scanPattern narrows the counter scan: bare prefix matches a policy name or
// a policy:identity pair under the rl: namespace.
func scanPattern() string {
	if limitsPrefix == "" {
		return "rl:*"
	}
	return "rl:" + limitsPrefix + "*"
}

func limitsClient() (*redis.Client, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if cfg.Redis.Addr == "" {
		return nil, fmt.Errorf("no redis.addr configured; the in-process store has no admin surface")
	}
	return redis.NewClient(&redis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	}), nil
}

func init() {
	limitsCmd.PersistentFlags().StringVar(&limitsPrefix, "prefix", "", "restrict to counters whose policy/identity starts with this prefix")
	limitsResetCmd.Flags().BoolVar(&resetYes, "yes", false, "confirm deletion")
	limitsCmd.AddCommand(limitsListCmd)
	limitsCmd.AddCommand(limitsResetCmd)
	rootCmd.AddCommand(limitsCmd)
}
