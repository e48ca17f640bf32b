package registry

import (
	"fmt"
	"strings"

	"github.com/cuemby/kvdeck/pkg/transport"
	"gopkg.in/yaml.v3"
)

// ValidateKubeconfigLocal checks that the blob is a YAML mapping with a
// "clusters" entry. Failures wrap transport.ErrValidation.
func ValidateKubeconfigLocal(kubeconfig string) error {
	if strings.TrimSpace(kubeconfig) == "" {
		return fmt.Errorf("%w: kubeconfig is empty", transport.ErrValidation)
	}

	var doc yaml.Node
	if err := yaml.Unmarshal([]byte(kubeconfig), &doc); err != nil {
		return fmt.Errorf("%w: invalid YAML format: %v", transport.ErrValidation, err)
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 || doc.Content[0].Kind != yaml.MappingNode {
		return fmt.Errorf("%w: kubeconfig must be a YAML mapping", transport.ErrValidation)
	}

	root := doc.Content[0]
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "clusters" {
			return nil
		}
	}
	return fmt.Errorf("%w: kubeconfig has no clusters section", transport.ErrValidation)
}
