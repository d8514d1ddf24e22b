package output

import (
	"encoding/json"
	"fmt"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/queue"
	"github.com/jbweber/nimbus/internal/vcloud"
)

// JSONFormatter formats resources as indented JSON. Lists are always
// arrays, never null.
type JSONFormatter struct{}

func marshalJSON(what string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s to JSON: %w", what, err)
	}
	return string(data) + "\n", nil
}

func (f *JSONFormatter) FormatQueues(queues []queue.Queue) (string, error) {
	if queues == nil {
		queues = []queue.Queue{}
	}
	return marshalJSON("queues", queues)
}

func (f *JSONFormatter) FormatMessages(messages []queue.Message) (string, error) {
	if messages == nil {
		messages = []queue.Message{}
	}
	return marshalJSON("messages", messages)
}

func (f *JSONFormatter) FormatZones(zones []compute.Zone) (string, error) {
	if zones == nil {
		zones = []compute.Zone{}
	}
	return marshalJSON("zones", zones)
}

func (f *JSONFormatter) FormatNetworks(networks []compute.Network) (string, error) {
	return marshalJSON("networks", networkViews(networks))
}

func (f *JSONFormatter) FormatNodes(nodes []compute.Node) (string, error) {
	if nodes == nil {
		nodes = []compute.Node{}
	}
	return marshalJSON("nodes", nodes)
}

func (f *JSONFormatter) FormatKeyPair(kp *compute.KeyPair) (string, error) {
	return marshalJSON("key pair", kp)
}

func (f *JSONFormatter) FormatExperiment(res *compute.ExperimentResult) (string, error) {
	if res == nil {
		return "null\n", nil
	}
	return marshalJSON("experiment result", newExperimentView(res))
}

func (f *JSONFormatter) FormatEndpoints(refs []vcloud.Reference) (string, error) {
	return marshalJSON("endpoints", endpointViews(refs))
}
