package pcs

import (
	"bufio"
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuemby/pcsd/pkg/types"
)

// ParseNodeList reads the output of "pcs status nodes [corosync]":
//
//	Corosync Nodes:
//	 Online: cat8 ace8
//	 Offline: bee8
func ParseNodeList(out string) (online, offline []string) {
	online, offline = []string{}, []string{}
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		switch {
		case strings.HasPrefix(line, "Online:"):
			online = append(online, strings.Fields(strings.TrimPrefix(line, "Online:"))...)
		case strings.HasPrefix(line, "Offline:"):
			offline = append(offline, strings.Fields(strings.TrimPrefix(line, "Offline:"))...)
		}
	}
	return online, offline
}

// ParseUptime formats the first field of /proc/uptime as "N days, HH:MM:SS"
func ParseUptime(procUptime string) (string, error) {
	fields := strings.Fields(procUptime)
	if len(fields) == 0 {
		return "", fmt.Errorf("empty uptime")
	}
	secs, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return "", fmt.Errorf("invalid uptime %q: %w", fields[0], err)
	}

	total := int64(secs)
	days := total / 86400
	hours := (total % 86400) / 3600
	mins := (total % 3600) / 60
	rest := total % 60

	unit := "days"
	if days == 1 {
		unit = "day"
	}
	return fmt.Sprintf("%d %s, %02d:%02d:%02d", days, unit, hours, mins, rest), nil
}

type crmMon struct {
	Resources struct {
		Resources []crmResource `xml:"resource"`
		Groups    []crmGroup    `xml:"group"`
		Clones    []crmClone    `xml:"clone"`
	} `xml:"resources"`
}

type crmResource struct {
	ID      string `xml:"id,attr"`
	Agent   string `xml:"resource_agent,attr"`
	Role    string `xml:"role,attr"`
	Active  bool   `xml:"active,attr"`
	Failed  bool   `xml:"failed,attr"`
	Managed bool   `xml:"managed,attr"`
	Nodes   []struct {
		Name string `xml:"name,attr"`
	} `xml:"node"`
}

type crmGroup struct {
	ID        string        `xml:"id,attr"`
	Resources []crmResource `xml:"resource"`
}

type crmClone struct {
	ID        string        `xml:"id,attr"`
	Resources []crmResource `xml:"resource"`
	Groups    []crmGroup    `xml:"group"`
}

func (r crmResource) summary(group string) types.ResourceSummary {
	nodes := make([]string, 0, len(r.Nodes))
	for _, n := range r.Nodes {
		nodes = append(nodes, n.Name)
	}
	return types.ResourceSummary{
		ID:      r.ID,
		Agent:   r.Agent,
		Role:    r.Role,
		Active:  r.Active,
		Failed:  r.Failed,
		Managed: r.Managed,
		Nodes:   nodes,
		Group:   group,
	}
}

// ParseResources reads "crm_mon --one-shot --as-xml" and returns the
// primitive resources, flattened, and the names of the groups
func ParseResources(data []byte) ([]types.ResourceSummary, []string, error) {
	var doc crmMon
	if err := xml.Unmarshal(data, &doc); err != nil {
		return []types.ResourceSummary{}, []string{}, fmt.Errorf("failed to parse crm_mon output: %w", err)
	}

	resources := []types.ResourceSummary{}
	groups := []string{}

	for _, r := range doc.Resources.Resources {
		resources = append(resources, r.summary(""))
	}
	addGroup := func(g crmGroup) {
		groups = append(groups, g.ID)
		for _, r := range g.Resources {
			resources = append(resources, r.summary(g.ID))
		}
	}
	for _, g := range doc.Resources.Groups {
		addGroup(g)
	}
	for _, c := range doc.Resources.Clones {
		for _, r := range c.Resources {
			resources = append(resources, r.summary(""))
		}
		for _, g := range c.Groups {
			addGroup(g)
		}
	}
	return resources, groups, nil
}

type cibConstraints struct {
	Location []struct {
		ID    string `xml:"id,attr"`
		Rsc   string `xml:"rsc,attr"`
		Node  string `xml:"node,attr"`
		Score string `xml:"score,attr"`
	} `xml:"rsc_location"`
	Order []struct {
		ID          string `xml:"id,attr"`
		First       string `xml:"first,attr"`
		FirstAction string `xml:"first-action,attr"`
		Then        string `xml:"then,attr"`
		ThenAction  string `xml:"then-action,attr"`
		Kind        string `xml:"kind,attr"`
	} `xml:"rsc_order"`
	Colocation []struct {
		ID      string `xml:"id,attr"`
		Rsc     string `xml:"rsc,attr"`
		WithRsc string `xml:"with-rsc,attr"`
		Score   string `xml:"score,attr"`
	} `xml:"rsc_colocation"`
}

// ParseConstraints reads "cibadmin --query --scope constraints"
func ParseConstraints(data []byte) (types.ConstraintSet, error) {
	var doc cibConstraints
	set := types.ConstraintSet{
		Location:   []types.LocationConstraint{},
		Ordering:   []types.OrderConstraint{},
		Colocation: []types.ColocationConstraint{},
	}
	if err := xml.Unmarshal(data, &doc); err != nil {
		return set, fmt.Errorf("failed to parse constraints: %w", err)
	}

	for _, c := range doc.Location {
		set.Location = append(set.Location, types.LocationConstraint{
			ID: c.ID, Resource: c.Rsc, Node: c.Node, Score: c.Score,
		})
	}
	for _, c := range doc.Order {
		set.Ordering = append(set.Ordering, types.OrderConstraint{
			ID: c.ID, First: c.First, FirstAction: c.FirstAction,
			Then: c.Then, ThenAction: c.ThenAction, Kind: c.Kind,
		})
	}
	for _, c := range doc.Colocation {
		set.Colocation = append(set.Colocation, types.ColocationConstraint{
			ID: c.ID, Resource: c.Rsc, WithResource: c.WithRsc, Score: c.Score,
		})
	}
	return set, nil
}

// ParseClusterName reads "corosync-cmapctl -g totem.cluster_name":
//
//	totem.cluster_name (str) = dwarf8
func ParseClusterName(out string) string {
	_, value, found := strings.Cut(strings.TrimSpace(out), "=")
	if !found {
		return ""
	}
	return strings.TrimSpace(value)
}
