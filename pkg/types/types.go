// Package types holds the records shared between pcsd packages: persisted
// credentials and clusters, and the transient status documents exchanged
// between nodes.
package types

import (
	"encoding/json"
	"errors"
	"time"
)

// Token is a bearer credential issued after a successful password login
type Token struct {
	Username  string    `json:"username"`
	Token     string    `json:"token"`
	Client    string    `json:"client"`
	CreatedAt time.Time `json:"creation_date"`
}

// UserCredential is the bootstrap user record written by "user create".
// Password holds a bcrypt hash, never the clear text.
type UserCredential struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Token    string `json:"token"`
}

// Cluster is a named, ordered set of nodes known to this pcsd instance
type Cluster struct {
	Name  string   `json:"name"`
	Nodes []string `json:"nodes"`
}

// NodeCount returns the number of nodes in the cluster
func (c Cluster) NodeCount() int {
	return len(c.Nodes)
}

// HasNode reports whether node is a member of the cluster
func (c Cluster) HasNode(node string) bool {
	for _, n := range c.Nodes {
		if n == node {
			return true
		}
	}
	return false
}

// NodeStatusReport is the document a node returns for the "status" command
type NodeStatusReport struct {
	NodeName         string            `json:"node_name,omitempty"`
	Uptime           string            `json:"uptime"`
	CorosyncRunning  bool              `json:"corosync"`
	PacemakerRunning bool              `json:"pacemaker"`
	CorosyncOnline   []string          `json:"corosync_online"`
	CorosyncOffline  []string          `json:"corosync_offline"`
	PacemakerOnline  []string          `json:"pacemaker_online"`
	PacemakerOffline []string          `json:"pacemaker_offline"`
	ClusterName      string            `json:"cluster_name"`
	Resources        []ResourceSummary `json:"resources"`
	Groups           []string          `json:"groups"`
	Constraints      ConstraintSet     `json:"constraints"`
}

// ErrInvalidReport is returned when a status body does not look like a NodeStatusReport
var ErrInvalidReport = errors.New("invalid node status report")

// ParseNodeStatusReport decodes a status body and checks the required fields
func ParseNodeStatusReport(body []byte) (*NodeStatusReport, error) {
	var report NodeStatusReport
	if err := json.Unmarshal(body, &report); err != nil {
		return nil, errors.Join(ErrInvalidReport, err)
	}
	if report.Uptime == "" {
		return nil, errors.Join(ErrInvalidReport, errors.New("missing uptime"))
	}
	return &report, nil
}

// ResourceSummary is a read-only view of one cluster resource
type ResourceSummary struct {
	ID      string   `json:"id"`
	Agent   string   `json:"agent"`
	Role    string   `json:"role"`
	Active  bool     `json:"active"`
	Failed  bool     `json:"failed"`
	Managed bool     `json:"managed"`
	Nodes   []string `json:"nodes"`
	Group   string   `json:"group,omitempty"`
}

// ConstraintSet groups the constraints of the CIB by kind
type ConstraintSet struct {
	Location   []LocationConstraint   `json:"location"`
	Ordering   []OrderConstraint      `json:"ordering"`
	Colocation []ColocationConstraint `json:"colocation"`
}

// LocationConstraint pins a resource to (or away from) a node
type LocationConstraint struct {
	ID       string `json:"id"`
	Resource string `json:"rsc"`
	Node     string `json:"node"`
	Score    string `json:"score"`
}

// OrderConstraint orders the actions of two resources
type OrderConstraint struct {
	ID          string `json:"id"`
	First       string `json:"first"`
	FirstAction string `json:"first_action,omitempty"`
	Then        string `json:"then"`
	ThenAction  string `json:"then_action,omitempty"`
	Kind        string `json:"kind,omitempty"`
}

// ColocationConstraint keeps two resources together (or apart)
type ColocationConstraint struct {
	ID           string `json:"id"`
	Resource     string `json:"rsc"`
	WithResource string `json:"with_rsc"`
	Score        string `json:"score"`
}

// Reasons carried by an ErrorMarker
const (
	ReasonTimeout           = "timeout"
	ReasonConnectionRefused = "connection_refused"
	ReasonTLS               = "tls_error"
	ReasonUnreachable       = "unreachable"
	ReasonHTTP              = "http_error"
	ReasonInvalidResponse   = "invalid_response"
)

// ErrorMarker stands in for a report when a node could not be queried
type ErrorMarker struct {
	Error  string `json:"error"`
	Status int    `json:"status,omitempty"`
}

// NodeResult holds either a report or an error marker for one node
type NodeResult struct {
	Report *NodeStatusReport
	Err    *ErrorMarker
}

// Failed reports whether the node result is an error marker
func (r NodeResult) Failed() bool {
	return r.Err != nil
}

// MarshalJSON writes the report or the marker as a bare object
func (r NodeResult) MarshalJSON() ([]byte, error) {
	if r.Err != nil {
		return json.Marshal(r.Err)
	}
	if r.Report == nil {
		return json.Marshal(ErrorMarker{Error: ReasonInvalidResponse})
	}
	return json.Marshal(r.Report)
}

// UnmarshalJSON reads an object that is either a marker or a report
func (r *NodeResult) UnmarshalJSON(data []byte) error {
	var shape struct {
		Error *string `json:"error"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return err
	}
	if shape.Error != nil {
		var marker ErrorMarker
		if err := json.Unmarshal(data, &marker); err != nil {
			return err
		}
		r.Err, r.Report = &marker, nil
		return nil
	}
	var report NodeStatusReport
	if err := json.Unmarshal(data, &report); err != nil {
		return err
	}
	r.Report, r.Err = &report, nil
	return nil
}

// AggregateStatus maps every targeted node to its result
type AggregateStatus map[string]NodeResult

// FailedNodes returns the nodes whose entry is an error marker
func (a AggregateStatus) FailedNodes() []string {
	var failed []string
	for node, res := range a {
		if res.Failed() {
			failed = append(failed, node)
		}
	}
	return failed
}
