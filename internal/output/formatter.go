// Package output formats nimbus results as tables, YAML or JSON.
package output

import (
	"fmt"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/queue"
	"github.com/jbweber/nimbus/internal/vcloud"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for scripts and config snippets.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// Formatter formats nimbus results for output.
type Formatter interface {
	FormatQueues(queues []queue.Queue) (string, error)
	FormatMessages(messages []queue.Message) (string, error)

	FormatZones(zones []compute.Zone) (string, error)
	FormatNetworks(networks []compute.Network) (string, error)
	FormatNodes(nodes []compute.Node) (string, error)
	FormatKeyPair(kp *compute.KeyPair) (string, error)
	FormatExperiment(res *compute.ExperimentResult) (string, error)

	FormatEndpoints(refs []vcloud.Reference) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	f := Format(format)
	switch f {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}

// networkView adds the broadcast URI, which compute.Network doesn't
// serialize itself.
type networkView struct {
	compute.Network `yaml:",inline"`
	BroadcastURI    string `json:"broadcastUri,omitempty" yaml:"broadcastUri,omitempty"`
}

func networkViews(networks []compute.Network) []networkView {
	views := make([]networkView, 0, len(networks))
	for _, n := range networks {
		views = append(views, networkView{Network: n, BroadcastURI: n.BroadcastURIString()})
	}
	return views
}

type experimentView struct {
	Zone            compute.Zone            `json:"zone" yaml:"zone"`
	Offering        compute.NetworkOffering `json:"offering" yaml:"offering"`
	Network         *networkView            `json:"network,omitempty" yaml:"network,omitempty"`
	Nodes           []compute.Node          `json:"nodes" yaml:"nodes"`
	DeletedNetworks []networkView           `json:"deletedNetworks,omitempty" yaml:"deletedNetworks,omitempty"`
}

func newExperimentView(res *compute.ExperimentResult) experimentView {
	v := experimentView{
		Zone:     res.Zone,
		Offering: res.Offering,
		Nodes:    res.Nodes,
	}
	if res.Network != nil {
		v.Network = &networkView{Network: *res.Network, BroadcastURI: res.Network.BroadcastURIString()}
	}
	if len(res.DeletedNetworks) > 0 {
		v.DeletedNetworks = networkViews(res.DeletedNetworks)
	}
	if v.Nodes == nil {
		v.Nodes = []compute.Node{}
	}
	return v
}

// endpointView is a vCloud reference with the endpoint it resolves to.
type endpointView struct {
	Name     string `json:"name" yaml:"name"`
	Type     string `json:"type,omitempty" yaml:"type,omitempty"`
	ID       string `json:"id,omitempty" yaml:"id,omitempty"`
	Endpoint string `json:"endpoint" yaml:"endpoint"`
}

func endpointViews(refs []vcloud.Reference) []endpointView {
	views := make([]endpointView, 0, len(refs))
	for _, ref := range refs {
		v := endpointView{Name: ref.Name, Type: ref.Type, ID: ref.ID}
		if u := vcloud.ReferenceToEndpoint(ref); u != nil {
			v.Endpoint = u.String()
		}
		views = append(views, v)
	}
	return views
}
