package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cuemby/kvdeck/pkg/health"
	"github.com/cuemby/kvdeck/pkg/keyspace"
	"github.com/cuemby/kvdeck/pkg/navigation"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/spf13/cobra"
)

func newEtcdCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "etcd",
		Short: "Browse and edit a cluster's etcd key space",
		Long: `Browse and edit the etcd key space of a cluster. Commands work on the
cluster chosen with 'kvdeck cluster use' unless --cluster is given.`,
	}
	cmd.PersistentFlags().Int64("cluster", 0, "Cluster id (default: the selected cluster)")

	cmd.AddCommand(newEtcdLsCmd(a))
	cmd.AddCommand(newEtcdTreeCmd(a))
	cmd.AddCommand(newEtcdGetCmd(a))
	cmd.AddCommand(newEtcdPutCmd(a))
	cmd.AddCommand(newEtcdDelCmd(a))
	cmd.AddCommand(newEtcdHealthCmd(a))

	return withRoute(cmd, navigation.RouteEtcdBrowser)
}

func (a *app) browser(cmd *cobra.Command) (*keyspace.Browser, error) {
	id, _ := cmd.Flags().GetInt64("cluster")
	b, err := a.client.Browser(cmd.Context(), id)
	if errors.Is(err, keyspace.ErrNoCluster) {
		return nil, fmt.Errorf("%w: run 'kvdeck cluster use ID' or pass --cluster", err)
	}
	return b, err
}

func addScanFlags(cmd *cobra.Command) {
	cmd.Flags().String("range-end", "", "List the range [PREFIX, RANGE_END) instead of a prefix")
	cmd.Flags().Int("limit", 0, "Maximum number of keys (default from config)")
}

func (a *app) scanOptions(cmd *cobra.Command, args []string, keysOnly bool) types.ScanOptions {
	opts := types.DefaultScanOptions()
	if len(args) == 1 {
		opts.Prefix = args[0]
	}
	opts.RangeEnd, _ = cmd.Flags().GetString("range-end")
	opts.Limit, _ = cmd.Flags().GetInt("limit")
	if opts.Limit == 0 {
		opts.Limit = a.cfg.Keyspace.ListLimit
	}
	opts.KeysOnly = keysOnly
	return opts
}

func warnTruncated(cmd *cobra.Command, listing types.KeyListing) {
	if listing.Truncated {
		fmt.Fprintf(cmd.ErrOrStderr(), "Listing stopped at %d keys, raise --limit to see more\n", listing.Count)
	}
}

func newEtcdLsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ls [PREFIX]",
		Short: "List keys",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.browser(cmd)
			if err != nil {
				return err
			}
			withValues, _ := cmd.Flags().GetBool("values")
			listing, err := b.ListKeys(cmd.Context(), a.scanOptions(cmd, args, !withValues))
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				records := listing.Records
				if records == nil {
					records = []types.KeyRecord{}
				}
				return printJSON(out, records)
			}
			for _, rec := range listing.Records {
				if withValues {
					fmt.Fprintf(out, "%s = %s\n", rec.Key, rec.Value)
				} else {
					fmt.Fprintln(out, rec.Key)
				}
			}
			warnTruncated(cmd, listing)
			return nil
		},
	}
	addScanFlags(cmd)
	cmd.Flags().Bool("values", false, "Include values")
	return cmd
}

func newEtcdTreeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tree [PREFIX]",
		Short: "Show keys as a tree",
		Long: `Show keys as a tree. Segments ending with the delimiter are prefixes of
other keys; a trailing "*" marks a prefix that is also a key itself. A
PREFIX ending with the delimiter shows only the keys below it.

With --remote the outline computed by the server is shown instead.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.browser(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if remote, _ := cmd.Flags().GetBool("remote"); remote {
				var prefix string
				if len(args) == 1 {
					prefix = args[0]
				}
				limit, _ := cmd.Flags().GetInt("limit")
				if limit == 0 {
					limit = a.cfg.Keyspace.TreeLimit
				}
				nodes, _, err := b.RemoteTree(cmd.Context(), prefix, limit)
				if err != nil {
					return err
				}
				if jsonOutput(cmd) {
					return printJSON(out, nodes)
				}
				printRemoteTree(out, nodes, 0)
				return nil
			}

			opts := a.scanOptions(cmd, args, true)
			listing, err := b.ListKeys(cmd.Context(), opts)
			if err != nil {
				return err
			}
			printTree(out, b.Tree(), opts.Prefix)
			warnTruncated(cmd, listing)
			return nil
		},
	}
	addScanFlags(cmd)
	cmd.Flags().Bool("remote", false, "Show the server-computed outline")
	return cmd
}

func newEtcdGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.browser(cmd)
			if err != nil {
				return err
			}
			rec, err := b.GetValue(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), rec)
			}
			fmt.Fprintln(cmd.OutOrStdout(), rec.Value)
			return nil
		},
	}
}

func newEtcdPutCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "put KEY [VALUE]",
		Short: "Write a key",
		Long: `Write a key. The value is taken from the argument, from --from-file, or
from stdin when neither is given.

Examples:
  kvdeck etcd put /config/app/replicas 3
  kvdeck etcd put /config/app/settings --from-file settings.json`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := putValue(cmd, args)
			if err != nil {
				return err
			}
			b, err := a.browser(cmd)
			if err != nil {
				return err
			}
			if err := b.PutValue(cmd.Context(), args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Key %s written\n", args[0])
			return nil
		},
	}
	cmd.Flags().String("from-file", "", "Read the value from a file")
	return cmd
}

func putValue(cmd *cobra.Command, args []string) (string, error) {
	file, _ := cmd.Flags().GetString("from-file")
	switch {
	case len(args) == 2 && file != "":
		return "", errors.New("give the value as an argument or with --from-file, not both")
	case len(args) == 2:
		return args[1], nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return string(data), nil
	default:
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return string(data), nil
	}
}

func newEtcdDelCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "del KEY",
		Aliases: []string{"rm"},
		Short:   "Delete a key",
		Long: `Delete a key. With --prefix every key starting with KEY is deleted,
compared as plain strings: "/config" also matches "/configX", "/config/"
does not match "/config" itself.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.browser(cmd)
			if err != nil {
				return err
			}
			prefix, _ := cmd.Flags().GetBool("prefix")
			if _, err := b.DeleteKey(cmd.Context(), args[0], prefix); err != nil {
				return err
			}
			if prefix {
				fmt.Fprintf(cmd.OutOrStdout(), "Keys with prefix %s deleted\n", args[0])
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Key %s deleted\n", args[0])
			}
			return nil
		},
	}
	cmd.Flags().Bool("prefix", false, "Delete every key with this prefix")
	return cmd
}

func newEtcdHealthCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check etcd health",
		Long: `Check the health of the cluster's etcd endpoints. With --watch the check
repeats every --interval until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := a.browser(cmd)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if watch, _ := cmd.Flags().GetBool("watch"); watch {
				interval, _ := cmd.Flags().GetDuration("interval")
				monitor := health.NewMonitor(health.NewEtcdChecker(b), health.Config{
					Interval: interval,
					Timeout:  a.cfg.Timeout,
				}, nil)
				monitor.Run(cmd.Context(), func(s health.Status) {
					r := s.LastResult
					fmt.Fprintf(out, "%s  %-9s  %-8s  %s\n",
						r.CheckedAt.Format(time.TimeOnly), healthLabel(s.Healthy),
						r.Duration.Round(time.Millisecond), r.Message)
				})
				return nil
			}

			report, err := b.Health(cmd.Context())
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(out, report)
			}

			fmt.Fprintf(out, "Cluster: %s\n", b.Cluster().Name)
			fmt.Fprintf(out, "Status:  %s (%s)\n\n", healthLabel(report.Healthy), report.Latency.Round(time.Millisecond))
			tw := newTable(out, "ENDPOINT", "HEALTH", "TOOK", "ERROR")
			for _, ep := range report.Endpoints {
				row(tw, ep.Endpoint, healthLabel(ep.Health), ep.Took, ep.Error)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if len(report.Members) > 0 {
				fmt.Fprintln(out)
				tw = newTable(out, "MEMBER", "ID", "CLIENT URLS")
				for _, m := range report.Members {
					row(tw, m.Name, fmt.Sprintf("%x", m.ID), m.ClientURLs)
				}
				return tw.Flush()
			}
			return nil
		},
	}
	cmd.Flags().Bool("watch", false, "Keep checking until interrupted")
	cmd.Flags().Duration("interval", health.DefaultConfig().Interval, "Time between checks with --watch")
	return cmd
}
