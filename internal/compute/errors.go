package compute

import (
	"errors"
	"fmt"
	"sort"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrNoZones      = errors.New("no zones available")
	ErrNoOffering   = errors.New("no suitable network offering")
	ErrNotSupported = errors.New("not supported by provider")
)

// NodeError is a node that a provider started to create but that failed.
type NodeError struct {
	Node Node
	Err  error
}

func (e NodeError) Error() string {
	return fmt.Sprintf("node %s: %v", e.Node.ID, e.Err)
}

func (e NodeError) Unwrap() error {
	return e.Err
}

// RunNodesError is returned by CreateNodesInGroup when only some nodes
// came up. Both the successful and the failed nodes may hold provider
// resources.
type RunNodesError struct {
	Group      string
	Successful []Node
	NodeErrors map[string]NodeError
}

func (e *RunNodesError) Error() string {
	total := len(e.Successful) + len(e.NodeErrors)
	msg := fmt.Sprintf("failed to create %d of %d nodes in group %s", len(e.NodeErrors), total, e.Group)

	// Report the lowest id so the message is stable.
	ids := make([]string, 0, len(e.NodeErrors))
	for id := range e.NodeErrors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	if len(ids) > 0 {
		msg += ": " + e.NodeErrors[ids[0]].Error()
	}
	return msg
}

func (e *RunNodesError) Unwrap() []error {
	errs := make([]error, 0, len(e.NodeErrors))
	for _, ne := range e.NodeErrors {
		errs = append(errs, ne)
	}
	return errs
}

// AllNodes returns every node the launch may have left behind: the
// successful nodes and the errored ones, deduplicated by id and sorted by
// id.
func (e *RunNodesError) AllNodes() []Node {
	seen := make(map[string]Node, len(e.Successful)+len(e.NodeErrors))
	for _, n := range e.Successful {
		seen[n.ID] = n
	}
	for id, ne := range e.NodeErrors {
		if _, ok := seen[id]; ok {
			continue
		}
		n := ne.Node
		if n.ID == "" {
			n.ID = id
		}
		seen[id] = n
	}

	nodes := make([]Node, 0, len(seen))
	for _, n := range seen {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}
