package domain

import "time"

// GraphDocument is the persisted representation of a graph.
type GraphDocument struct {
	UID      string           `json:"uid" yaml:"uid"`
	Label    string           `json:"label" yaml:"label"`
	Created  time.Time        `json:"created" yaml:"created"`
	Nodes    []NodeDocument   `json:"nodes" yaml:"nodes"`
	Branches []BranchDocument `json:"branches" yaml:"branches"`
}

// NodeDocument is a serialized node. Options are flattened next to the
// identity fields, so it is kept as an open map.
type NodeDocument map[string]any

const (
	// KeyUID is the document key holding a node uid.
	KeyUID = "uid"
	// KeyLabel is the document key holding a node label.
	KeyLabel = "label"
	// KeyNodeType is the document key holding the node behavior name.
	KeyNodeType = "node_type"
)

// UID returns the node uid, or "" when missing.
func (d NodeDocument) UID() string { return stringField(d, KeyUID) }

// Label returns the node label, or "" when missing.
func (d NodeDocument) Label() string { return stringField(d, KeyLabel) }

// Type returns the node behavior name, or "" when missing.
func (d NodeDocument) Type() string { return stringField(d, KeyNodeType) }

// Options returns the node fields other than uid, label and node_type.
func (d NodeDocument) Options() map[string]any {
	opts := make(map[string]any, len(d))
	for k, v := range d {
		switch k {
		case KeyUID, KeyLabel, KeyNodeType:
			continue
		}
		opts[k] = v
	}
	return opts
}

func stringField(d NodeDocument, key string) string {
	s, _ := d[key].(string)
	return s
}

// BranchDocument is a serialized connector.
type BranchDocument struct {
	UID         string `json:"uid" yaml:"uid"`
	Label       string `json:"label" yaml:"label"`
	Conditional string `json:"conditional" yaml:"conditional"`
	Prev        string `json:"prev" yaml:"prev"`
	Next        string `json:"next" yaml:"next"`
}

// GraphSummary is the listing view of a stored graph.
type GraphSummary struct {
	UID   string `json:"uid"`
	Label string `json:"label"`
}
