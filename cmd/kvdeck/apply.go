package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/cuemby/kvdeck/pkg/navigation"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newApplyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Apply a configuration file",
		Long: `Apply clusters and keys from a YAML file. A file may hold several
documents separated by "---".

Examples:
  # Register or update a cluster
  kvdeck apply -f cluster.yaml

  # Seed keys
  kvdeck apply -f keys.yaml

A Cluster resource:

  apiVersion: kvdeck/v1
  kind: Cluster
  metadata:
    name: staging
  spec:
    description: eu-west staging
    kubeconfigFile: ~/.kube/staging.yaml
    active: true

A Key resource (cluster is an id or a name, the selected cluster by default):

  apiVersion: kvdeck/v1
  kind: Key
  metadata:
    name: /config/app/replicas
  spec:
    cluster: staging
    value: "3"`,
		RunE: a.runApply,
	}

	cmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	_ = cmd.MarkFlagRequired("file")
	return withRoute(cmd, navigation.RouteClusters)
}

// Resource is one document of an apply file
type Resource struct {
	APIVersion string                 `yaml:"apiVersion"`
	Kind       string                 `yaml:"kind"`
	Metadata   ResourceMetadata       `yaml:"metadata"`
	Spec       map[string]interface{} `yaml:"spec"`
}

type ResourceMetadata struct {
	Name   string            `yaml:"name"`
	Labels map[string]string `yaml:"labels,omitempty"`
}

// readResources decodes every document of a YAML stream
func readResources(r io.Reader) ([]Resource, error) {
	var resources []Resource
	dec := yaml.NewDecoder(r)
	for {
		var res Resource
		err := dec.Decode(&res)
		if errors.Is(err, io.EOF) {
			return resources, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
		if res.Kind == "" && res.Metadata.Name == "" {
			continue
		}
		if res.Metadata.Name == "" {
			return nil, fmt.Errorf("%s resource has no metadata.name", res.Kind)
		}
		resources = append(resources, res)
	}
}

func (a *app) runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")

	f, err := os.Open(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	resources, err := readResources(f)
	if err != nil {
		return err
	}

	// Unknown kinds are rejected before anything is applied
	for _, res := range resources {
		switch res.Kind {
		case "Cluster", "Key":
		default:
			return fmt.Errorf("unsupported resource kind: %s", res.Kind)
		}
	}

	for i := range resources {
		res := &resources[i]
		switch res.Kind {
		case "Cluster":
			err = a.applyCluster(cmd, res)
		case "Key":
			err = a.applyKey(cmd, res)
		}
		if err != nil {
			return fmt.Errorf("%s %s: %w", res.Kind, res.Metadata.Name, err)
		}
	}
	return nil
}

func (a *app) applyCluster(cmd *cobra.Command, res *Resource) error {
	ctx := cmd.Context()
	store := a.client.Registry()

	in := types.ClusterInput{
		Name:        res.Metadata.Name,
		Description: getString(res.Spec, "description", ""),
		Kubeconfig:  getString(res.Spec, "kubeconfig", ""),
	}
	if path := getString(res.Spec, "kubeconfigFile", ""); path != "" {
		if in.Kubeconfig != "" {
			return errors.New("set kubeconfig or kubeconfigFile, not both")
		}
		kubeconfig, err := readKubeconfig(expandPath(path))
		if err != nil {
			return err
		}
		in.Kubeconfig = kubeconfig
	}
	if v, ok := res.Spec["active"].(bool); ok {
		in.IsActive = &v
	}

	clusters, err := store.Refresh(ctx)
	if err != nil {
		return err
	}
	for _, c := range clusters {
		if c.Name != in.Name {
			continue
		}
		in.Name = ""
		if _, err := store.Update(ctx, c.ID, in); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s configured\n", c.Name)
		return nil
	}

	cluster, err := store.Create(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s created (id %d)\n", cluster.Name, cluster.ID)
	return nil
}

func (a *app) applyKey(cmd *cobra.Command, res *Resource) error {
	ctx := cmd.Context()

	value, ok := res.Spec["value"]
	if !ok {
		return errors.New("spec.value is required")
	}

	clusterID, err := a.resolveCluster(cmd, res.Spec["cluster"])
	if err != nil {
		return err
	}
	b, err := a.client.Browser(ctx, clusterID)
	if err != nil {
		return err
	}
	if err := b.PutValue(ctx, res.Metadata.Name, fmt.Sprint(value)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Key %s written to %s\n", res.Metadata.Name, b.Cluster().Name)
	return nil
}

// resolveCluster maps a spec.cluster reference onto a cluster id. Nil
// selects the remembered cluster.
func (a *app) resolveCluster(cmd *cobra.Command, ref interface{}) (int64, error) {
	switch v := ref.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id, nil
		}
		store := a.client.Registry()
		if !store.Loaded() {
			if _, err := store.Refresh(cmd.Context()); err != nil {
				return 0, err
			}
		}
		for _, c := range store.Clusters() {
			if c.Name == v {
				return c.ID, nil
			}
		}
		return 0, fmt.Errorf("cluster %q not found", v)
	default:
		return 0, fmt.Errorf("invalid cluster reference %v", v)
	}
}

// Helper functions to extract values from spec maps
func getString(m map[string]interface{}, key, defaultValue string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return defaultValue
}

func expandPath(path string) string {
	if len(path) > 1 && path[:2] == "~/" {
		if home, err := os.UserHomeDir(); err == nil {
			return home + path[1:]
		}
	}
	return path
}
