package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/cuemby/kvdeck/pkg/keyspace"
	"github.com/cuemby/kvdeck/pkg/navigation"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/spf13/cobra"
)

func newClusterCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "cluster",
		Aliases: []string{"clusters"},
		Short:   "Manage registered cluster connections",
	}

	cmd.AddCommand(newClusterListCmd(a))
	cmd.AddCommand(newClusterGetCmd(a))
	cmd.AddCommand(newClusterCreateCmd(a))
	cmd.AddCommand(newClusterUpdateCmd(a))
	cmd.AddCommand(newClusterDeleteCmd(a))
	cmd.AddCommand(newClusterStatusCmd(a))
	cmd.AddCommand(newClusterTestCmd(a))
	cmd.AddCommand(newClusterValidateCmd(a))
	cmd.AddCommand(newClusterConnectionsCmd(a))
	cmd.AddCommand(newClusterUseCmd(a))

	return withRoute(cmd, navigation.RouteClusters)
}

func parseClusterID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid cluster id %q", arg)
	}
	return id, nil
}

func readKubeconfig(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read kubeconfig: %w", err)
	}
	return string(data), nil
}

func newClusterListCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List registered clusters",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := a.client.Registry()
			clusters, err := store.Refresh(cmd.Context())
			if err != nil {
				return err
			}
			if onlyActive, _ := cmd.Flags().GetBool("active"); onlyActive {
				clusters = store.Active()
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				if clusters == nil {
					clusters = []types.Cluster{}
				}
				return printJSON(out, clusters)
			}
			if len(clusters) == 0 {
				fmt.Fprintln(out, "No clusters registered")
				return nil
			}

			current, err := a.client.ActiveCluster()
			if err != nil && !errors.Is(err, keyspace.ErrNoCluster) {
				return err
			}

			tw := newTable(out, "", "ID", "NAME", "ACTIVE", "CREATED", "DESCRIPTION")
			for _, c := range clusters {
				mark := ""
				if c.ID == current {
					mark = "*"
				}
				row(tw, mark, c.ID, c.Name, yesNo(c.IsActive), formatTime(c.CreatedAt), c.Description)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().Bool("active", false, "Only list active clusters")
	return cmd
}

func printCluster(cmd *cobra.Command, c *types.Cluster) error {
	out := cmd.OutOrStdout()
	if jsonOutput(cmd) {
		return printJSON(out, c)
	}

	fmt.Fprintf(out, "ID:          %d\n", c.ID)
	fmt.Fprintf(out, "Name:        %s\n", c.Name)
	fmt.Fprintf(out, "Description: %s\n", c.Description)
	fmt.Fprintf(out, "Active:      %s\n", yesNo(c.IsActive))
	if c.CreatedByUsername != "" {
		fmt.Fprintf(out, "Created by:  %s\n", c.CreatedByUsername)
	}
	fmt.Fprintf(out, "Created:     %s\n", formatTime(c.CreatedAt))
	fmt.Fprintf(out, "Updated:     %s\n", formatTime(c.UpdatedAt))
	return nil
}

func newClusterGetCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "get ID",
		Short: "Show a cluster",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			cluster, err := a.client.Registry().Fetch(cmd.Context(), id)
			if err != nil {
				return err
			}
			return printCluster(cmd, cluster)
		},
	}
}

func newClusterCreateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create NAME",
		Short: "Register a cluster",
		Long: `Register a Kubernetes cluster connection.

Examples:
  kvdeck cluster create staging --kubeconfig ~/.kube/staging.yaml
  kvdeck cluster create lab --kubeconfig lab.yaml --inactive`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("kubeconfig")
			description, _ := cmd.Flags().GetString("description")
			inactive, _ := cmd.Flags().GetBool("inactive")

			kubeconfig, err := readKubeconfig(path)
			if err != nil {
				return err
			}
			active := !inactive

			cluster, err := a.client.Registry().Create(cmd.Context(), types.ClusterInput{
				Name:        args[0],
				Description: description,
				Kubeconfig:  kubeconfig,
				IsActive:    &active,
			})
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), cluster)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s created (id %d)\n", cluster.Name, cluster.ID)
			return nil
		},
	}

	cmd.Flags().String("kubeconfig", "", "Kubeconfig file (required)")
	cmd.Flags().String("description", "", "Description")
	cmd.Flags().Bool("inactive", false, "Register the cluster disabled")
	_ = cmd.MarkFlagRequired("kubeconfig")
	return cmd
}

func newClusterUpdateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Change a cluster",
		Long: `Change a cluster. Only the flags given are sent.

Examples:
  kvdeck cluster update 3 --description "eu-west staging"
  kvdeck cluster update 3 --active=false`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}

			var in types.ClusterInput
			flags := cmd.Flags()
			if flags.Changed("name") {
				in.Name, _ = flags.GetString("name")
			}
			if flags.Changed("description") {
				in.Description, _ = flags.GetString("description")
			}
			if flags.Changed("kubeconfig") {
				path, _ := flags.GetString("kubeconfig")
				if in.Kubeconfig, err = readKubeconfig(path); err != nil {
					return err
				}
			}
			if flags.Changed("active") {
				active, _ := flags.GetBool("active")
				in.IsActive = &active
			}
			if in == (types.ClusterInput{}) {
				return errors.New("nothing to update: set --name, --description, --kubeconfig or --active")
			}

			cluster, err := a.client.Registry().Update(cmd.Context(), id, in)
			if err != nil {
				return err
			}
			return printCluster(cmd, cluster)
		},
	}

	cmd.Flags().String("name", "", "New name")
	cmd.Flags().String("description", "", "New description")
	cmd.Flags().String("kubeconfig", "", "New kubeconfig file")
	cmd.Flags().Bool("active", true, "Enable or disable the cluster")
	return cmd
}

func newClusterDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:     "delete ID",
		Aliases: []string{"rm"},
		Short:   "Remove a cluster",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			if err := a.client.Registry().Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cluster %d deleted\n", id)
			return nil
		},
	}
}

func newClusterStatusCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status ID",
		Short: "Check a cluster's connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			status, err := a.client.Clusters().GetStatus(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, status)
			}
			nodes := "-"
			if status.NodesCount != nil {
				nodes = strconv.Itoa(*status.NodesCount)
			}
			fmt.Fprintf(out, "Cluster:   %s (%d)\n", status.ClusterName, status.ClusterID)
			fmt.Fprintf(out, "Connected: %s\n", yesNo(status.IsConnected))
			fmt.Fprintf(out, "Version:   %s\n", orDash(status.Version))
			fmt.Fprintf(out, "Nodes:     %s\n", nodes)
			if status.Error != nil {
				fmt.Fprintf(out, "Error:     %s\n", *status.Error)
			}
			return nil
		},
	}
}

func newClusterTestCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "test ID",
		Short: "Run a one-shot connection test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			result, err := a.client.Clusters().TestConnection(cmd.Context(), id)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			if !result.Success {
				return fmt.Errorf("connection test failed: %s", result.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Connection OK: %s\n", result.Message)
			return nil
		},
	}
}

func newClusterValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Validate a kubeconfig",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kubeconfig, err := readKubeconfig(args[0])
			if err != nil {
				return err
			}
			result, err := a.client.Clusters().ValidateKubeconfig(cmd.Context(), kubeconfig)
			if err != nil {
				return err
			}
			if jsonOutput(cmd) {
				return printJSON(cmd.OutOrStdout(), result)
			}
			if !result.Valid {
				return fmt.Errorf("invalid kubeconfig: %s", result.Message)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Kubeconfig is valid: %s\n", result.Message)
			return nil
		},
	}
}

func newClusterConnectionsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "connections [ID]",
		Short: "Show the connection log",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var id int64
			if len(args) == 1 {
				var err error
				if id, err = parseClusterID(args[0]); err != nil {
					return err
				}
			}
			conns, err := a.client.Clusters().ListConnections(cmd.Context(), id)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				if conns == nil {
					conns = []types.ClusterConnection{}
				}
				return printJSON(out, conns)
			}
			if len(conns) == 0 {
				fmt.Fprintln(out, "No connections recorded")
				return nil
			}

			tw := newTable(out, "TIME", "CLUSTER", "USER", "STATUS", "ERROR")
			for _, c := range conns {
				row(tw, formatTime(c.ConnectedAt), c.ClusterName, c.Username, c.Status, c.ErrorMessage)
			}
			return tw.Flush()
		},
	}
}

func newClusterUseCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "use ID",
		Short: "Select the cluster the etcd commands work on",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseClusterID(args[0])
			if err != nil {
				return err
			}
			browser, err := a.client.UseCluster(cmd.Context(), id)
			if err != nil {
				return err
			}

			cluster := browser.Cluster()
			fmt.Fprintf(cmd.OutOrStdout(), "Switched to cluster %s (%d)\n", cluster.Name, cluster.ID)
			if status := a.client.Workspace().Status(); status != nil && !status.IsConnected {
				fmt.Fprintf(cmd.ErrOrStderr(), "Warning: cluster is not connected: %s\n", orDash(status.Error))
			}
			return nil
		},
	}
	return withRoute(cmd, navigation.RouteEtcdBrowser)
}
