package pcs

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/types"
)

// Tools holds the paths of the external cluster tools
type Tools struct {
	PCS       string
	CrmMon    string
	Cibadmin  string
	Cmapctl   string
	Systemctl string
}

// DefaultTools returns the tool locations of a stock installation
func DefaultTools() Tools {
	return Tools{
		PCS:       "/usr/sbin/pcs",
		CrmMon:    "/usr/sbin/crm_mon",
		Cibadmin:  "/usr/sbin/cibadmin",
		Cmapctl:   "/usr/sbin/corosync-cmapctl",
		Systemctl: "/usr/bin/systemctl",
	}
}

// Cluster drives the local node through the external cluster tools
type Cluster struct {
	exec       Executor
	tools      Tools
	uptimePath string
}

// NewCluster returns a Cluster that runs tools through exec
func NewCluster(exec Executor, tools Tools) *Cluster {
	return &Cluster{exec: exec, tools: tools, uptimePath: "/proc/uptime"}
}

// SetUptimePath overrides the /proc/uptime location
func (c *Cluster) SetUptimePath(path string) {
	c.uptimePath = path
}

func (c *Cluster) pcs(ctx context.Context, args ...string) (*Result, error) {
	return c.exec.Run(ctx, append([]string{c.tools.PCS}, args...)...)
}

// Start starts cluster services on this node
func (c *Cluster) Start(ctx context.Context) (*Result, error) {
	return c.pcs(ctx, "cluster", "start")
}

// Stop stops cluster services on this node
func (c *Cluster) Stop(ctx context.Context) (*Result, error) {
	return c.pcs(ctx, "cluster", "stop")
}

// Enable makes cluster services start at boot
func (c *Cluster) Enable(ctx context.Context) (*Result, error) {
	return c.pcs(ctx, "cluster", "enable")
}

// Disable stops cluster services from starting at boot
func (c *Cluster) Disable(ctx context.Context) (*Result, error) {
	return c.pcs(ctx, "cluster", "disable")
}

// AddNode adds node to the local cluster
func (c *Cluster) AddNode(ctx context.Context, node string) (*Result, error) {
	return c.pcs(ctx, "cluster", "node", "add", node)
}

// RemoveNode removes node from the local cluster
func (c *Cluster) RemoveNode(ctx context.Context, node string) (*Result, error) {
	return c.pcs(ctx, "cluster", "node", "remove", node)
}

// EnableResource allows the cluster to start resource id
func (c *Cluster) EnableResource(ctx context.Context, id string) (*Result, error) {
	return c.pcs(ctx, "resource", "enable", id)
}

// DisableResource stops resource id and keeps it stopped
func (c *Cluster) DisableResource(ctx context.Context, id string) (*Result, error) {
	return c.pcs(ctx, "resource", "disable", id)
}

// ServiceActive reports whether a systemd unit is active
func (c *Cluster) ServiceActive(ctx context.Context, unit string) bool {
	res, err := c.exec.Run(ctx, c.tools.Systemctl, "is-active", unit)
	return err == nil && strings.TrimSpace(res.Stdout) == "active"
}

// Nodes returns the online and offline nodes as seen by pacemaker, or by
// corosync when corosync is true
func (c *Cluster) Nodes(ctx context.Context, corosync bool) (online, offline []string, err error) {
	args := []string{"status", "nodes"}
	if corosync {
		args = append(args, "corosync")
	}
	res, err := c.pcs(ctx, args...)
	if err != nil {
		return []string{}, []string{}, err
	}
	online, offline = ParseNodeList(res.Stdout)
	return online, offline, nil
}

// ClusterName returns the corosync cluster name, or "" when unknown
func (c *Cluster) ClusterName(ctx context.Context) string {
	res, err := c.exec.Run(ctx, c.tools.Cmapctl, "-g", "totem.cluster_name")
	if err != nil {
		return ""
	}
	return ParseClusterName(res.Stdout)
}

// Resources returns the resources and groups reported by crm_mon
func (c *Cluster) Resources(ctx context.Context) ([]types.ResourceSummary, []string, error) {
	res, err := c.exec.Run(ctx, c.tools.CrmMon, "--one-shot", "--as-xml")
	if err != nil {
		return []types.ResourceSummary{}, []string{}, err
	}
	return ParseResources([]byte(res.Stdout))
}

// Constraints returns the constraints section of the CIB
func (c *Cluster) Constraints(ctx context.Context) (types.ConstraintSet, error) {
	res, err := c.exec.Run(ctx, c.tools.Cibadmin, "--query", "--scope", "constraints")
	if err != nil {
		return types.ConstraintSet{
			Location:   []types.LocationConstraint{},
			Ordering:   []types.OrderConstraint{},
			Colocation: []types.ColocationConstraint{},
		}, err
	}
	return ParseConstraints([]byte(res.Stdout))
}

// Uptime returns the formatted system uptime
func (c *Cluster) Uptime() (string, error) {
	data, err := os.ReadFile(c.uptimePath)
	if err != nil {
		return "", fmt.Errorf("failed to read uptime: %w", err)
	}
	return ParseUptime(string(data))
}

// LocalStatus builds the status report of this node. Only a missing uptime
// fails the report; tool failures leave their sections empty, since a node
// with stopped cluster services still answers status.
func (c *Cluster) LocalStatus(ctx context.Context, nodeName string) (*types.NodeStatusReport, error) {
	uptime, err := c.Uptime()
	if err != nil {
		return nil, err
	}

	logger := log.WithComponent("pcs")
	report := &types.NodeStatusReport{
		NodeName:         nodeName,
		Uptime:           uptime,
		CorosyncRunning:  c.ServiceActive(ctx, "corosync"),
		PacemakerRunning: c.ServiceActive(ctx, "pacemaker"),
		CorosyncOnline:   []string{},
		CorosyncOffline:  []string{},
		PacemakerOnline:  []string{},
		PacemakerOffline: []string{},
		Resources:        []types.ResourceSummary{},
		Groups:           []string{},
	}

	if report.CorosyncRunning {
		if report.CorosyncOnline, report.CorosyncOffline, err = c.Nodes(ctx, true); err != nil {
			logger.Debug().Err(err).Msg("corosync node list unavailable")
		}
		report.ClusterName = c.ClusterName(ctx)
	}

	if report.PacemakerRunning {
		if report.PacemakerOnline, report.PacemakerOffline, err = c.Nodes(ctx, false); err != nil {
			logger.Debug().Err(err).Msg("pacemaker node list unavailable")
		}
		if report.Resources, report.Groups, err = c.Resources(ctx); err != nil {
			logger.Debug().Err(err).Msg("resource list unavailable")
		}
	}

	if report.Constraints, err = c.Constraints(ctx); err != nil {
		logger.Debug().Err(err).Msg("constraints unavailable")
	}
	return report, nil
}
