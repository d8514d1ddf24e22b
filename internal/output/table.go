package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jbweber/nimbus/internal/compute"
	"github.com/jbweber/nimbus/internal/queue"
	"github.com/jbweber/nimbus/internal/vcloud"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool

	// Now is used for ages; time.Now when nil.
	Now func() time.Time
}

func (f *TableFormatter) now() time.Time {
	if f.Now == nil {
		return time.Now()
	}
	return f.Now()
}

// table writes header and rows through a tabwriter. Empty cells print as
// "-".
func (f *TableFormatter) table(header string, rows [][]string) string {
	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, header)
	}
	for _, row := range rows {
		for i := range row {
			if row[i] == "" {
				row[i] = "-"
			}
		}
		_, _ = fmt.Fprintln(w, strings.Join(row, "\t"))
	}

	_ = w.Flush()
	return buf.String()
}

// FormatQueues formats a queue listing.
func (f *TableFormatter) FormatQueues(queues []queue.Queue) (string, error) {
	if len(queues) == 0 {
		return "No queues found\n", nil
	}

	rows := make([][]string, 0, len(queues))
	for _, q := range queues {
		rows = append(rows, []string{q.Name, q.URL})
	}
	return f.table("NAME\tURL", rows), nil
}

// FormatMessages formats dequeued or posted messages. AGE is derived from
// the insertion time.
func (f *TableFormatter) FormatMessages(messages []queue.Message) (string, error) {
	if len(messages) == 0 {
		return "No messages found\n", nil
	}

	rows := make([][]string, 0, len(messages))
	for _, m := range messages {
		age := ""
		if t, err := queue.ParseTime(m.InsertionTime); err == nil {
			age = formatAge(f.now().Sub(t))
		}
		rows = append(rows, []string{
			m.MessageID,
			age,
			fmt.Sprintf("%d", m.DequeueCount),
			m.PopReceipt,
			m.MessageText,
		})
	}
	return f.table("ID\tAGE\tDEQUEUES\tPOP RECEIPT\tTEXT", rows), nil
}

// FormatZones formats a zone listing.
func (f *TableFormatter) FormatZones(zones []compute.Zone) (string, error) {
	if len(zones) == 0 {
		return "No zones found\n", nil
	}

	rows := make([][]string, 0, len(zones))
	for _, z := range zones {
		rows = append(rows, []string{z.ID, z.Name})
	}
	return f.table("ID\tNAME", rows), nil
}

// FormatNetworks formats a network listing.
func (f *TableFormatter) FormatNetworks(networks []compute.Network) (string, error) {
	if len(networks) == 0 {
		return "No networks found\n", nil
	}

	rows := make([][]string, 0, len(networks))
	for _, n := range networks {
		cidr := ""
		if n.Gateway != "" {
			cidr = n.Gateway + "/" + n.Netmask
		}
		rows = append(rows, []string{
			n.ID,
			n.Name,
			n.ZoneID,
			n.BroadcastURIString(),
			cidr,
			fmt.Sprintf("%t", n.IsDefault),
		})
	}
	return f.table("ID\tNAME\tZONE\tBROADCAST URI\tGATEWAY\tDEFAULT", rows), nil
}

// FormatNodes formats a node listing.
func (f *TableFormatter) FormatNodes(nodes []compute.Node) (string, error) {
	if len(nodes) == 0 {
		return "No nodes found\n", nil
	}

	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{
			n.ID,
			n.Name,
			n.Group,
			string(n.State),
			strings.Join(n.PrivateIPs, ","),
		})
	}
	return f.table("ID\tNAME\tGROUP\tSTATE\tIP", rows), nil
}

// FormatKeyPair formats a key pair. A generated private key is printed
// after the table so it can be copied as is.
func (f *TableFormatter) FormatKeyPair(kp *compute.KeyPair) (string, error) {
	if kp == nil {
		return "No key pair\n", nil
	}

	out := f.table("NAME\tFINGERPRINT", [][]string{{kp.Name, kp.Fingerprint}})
	if kp.PrivateKey != "" {
		out += "\n" + strings.TrimRight(kp.PrivateKey, "\n") + "\n"
	}
	return out, nil
}

// FormatExperiment summarizes a network experiment.
func (f *TableFormatter) FormatExperiment(res *compute.ExperimentResult) (string, error) {
	if res == nil {
		return "No experiment result\n", nil
	}

	network := ""
	if res.Network != nil {
		network = res.Network.ID
		if uri := res.Network.BroadcastURIString(); uri != "" {
			network += " (" + uri + ")"
		}
	}

	rows := [][]string{
		{"Zone", res.Zone.Name},
		{"Offering", res.Offering.Name},
		{"Network", network},
		{"Nodes", fmt.Sprintf("%d", len(res.Nodes))},
		{"Stale networks deleted", fmt.Sprintf("%d", len(res.DeletedNetworks))},
	}
	out := f.table("FIELD\tVALUE", rows)

	if len(res.Nodes) > 0 {
		nodes, err := f.FormatNodes(res.Nodes)
		if err != nil {
			return "", err
		}
		out += "\n" + nodes
	}
	return out, nil
}

// formatAge formats a duration as a human-readable age string.
// Examples: "5s", "2m", "3h", "4d", "2w", "1y"
func formatAge(d time.Duration) string {
	if d < 0 {
		return "unknown"
	}

	seconds := int(d.Seconds())

	// Less than 1 minute
	if seconds < 60 {
		return fmt.Sprintf("%ds", seconds)
	}

	minutes := seconds / 60
	// Less than 1 hour
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}

	hours := minutes / 60
	// Less than 1 day
	if hours < 24 {
		return fmt.Sprintf("%dh", hours)
	}

	days := hours / 24
	// Less than 1 week
	if days < 7 {
		return fmt.Sprintf("%dd", days)
	}

	weeks := days / 7
	// Less than ~2 months (8 weeks)
	if weeks < 8 {
		return fmt.Sprintf("%dw", weeks)
	}

	years := days / 365
	if years > 0 {
		return fmt.Sprintf("%dy", years)
	}

	return fmt.Sprintf("%dd", days)
}

// FormatEndpoints formats vCloud references with their endpoints.
func (f *TableFormatter) FormatEndpoints(refs []vcloud.Reference) (string, error) {
	if len(refs) == 0 {
		return "No references found\n", nil
	}

	views := endpointViews(refs)
	rows := make([][]string, 0, len(views))
	for _, v := range views {
		rows = append(rows, []string{v.Name, v.Type, v.Endpoint})
	}
	return f.table("NAME\tTYPE\tENDPOINT", rows), nil
}
