package output

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/queue"
	"github.com/jbweber/nimbus/internal/vcloud"
)

// YAMLFormatter formats resources as YAML. Lists are a single YAML
// sequence.
type YAMLFormatter struct{}

func marshalYAML(what string, v any) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to YAML: %w", what, err)
	}
	return string(data), nil
}

func (f *YAMLFormatter) FormatQueues(queues []queue.Queue) (string, error) {
	if queues == nil {
		queues = []queue.Queue{}
	}
	return marshalYAML("queues", queues)
}

func (f *YAMLFormatter) FormatMessages(messages []queue.Message) (string, error) {
	if messages == nil {
		messages = []queue.Message{}
	}
	return marshalYAML("messages", messages)
}

func (f *YAMLFormatter) FormatZones(zones []compute.Zone) (string, error) {
	if zones == nil {
		zones = []compute.Zone{}
	}
	return marshalYAML("zones", zones)
}

func (f *YAMLFormatter) FormatNetworks(networks []compute.Network) (string, error) {
	return marshalYAML("networks", networkViews(networks))
}

func (f *YAMLFormatter) FormatNodes(nodes []compute.Node) (string, error) {
	if nodes == nil {
		nodes = []compute.Node{}
	}
	return marshalYAML("nodes", nodes)
}

func (f *YAMLFormatter) FormatKeyPair(kp *compute.KeyPair) (string, error) {
	return marshalYAML("key pair", kp)
}

func (f *YAMLFormatter) FormatExperiment(res *compute.ExperimentResult) (string, error) {
	if res == nil {
		return "null\n", nil
	}
	return marshalYAML("experiment result", newExperimentView(res))
}

func (f *YAMLFormatter) FormatEndpoints(refs []vcloud.Reference) (string, error) {
	return marshalYAML("endpoints", endpointViews(refs))
}
