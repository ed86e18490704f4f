package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/pcsd/pkg/api"
	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/rpc"
	"github.com/cuemby/pcsd/pkg/types"
)

var statusCmd = &cobra.Command{
	Use:   "status [NODE...]",
	Short: "Show the status of cluster nodes",
	Long: `Ask the local pcsd for the status of several nodes at once.

Without arguments every node of every registered cluster is queried. Nodes
that cannot be reached are listed with the reason.

Examples:
  # All registered nodes
  pcsd status

  # One cluster as YAML
  pcsd status --cluster dwarf8 -o yaml

  # Explicit nodes
  pcsd status cat8 ace8`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().String("cluster", "", "only query the nodes of this registered cluster")
	statusCmd.Flags().StringP("output", "o", "text", "output format (text, json, yaml)")
	statusCmd.Flags().String("host", "localhost", "pcsd to ask")
	statusCmd.Flags().String("token", "", "token for the local pcsd (default the "+auth.SuperUser+" credential token)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	clusterName, _ := cmd.Flags().GetString("cluster")
	output, _ := cmd.Flags().GetString("output")
	host, _ := cmd.Flags().GetString("host")
	token, _ := cmd.Flags().GetString("token")

	switch output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("unknown output format %q", output)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if token, err = localToken(cfg, token); err != nil {
		return err
	}

	form := url.Values{}
	if len(args) > 0 {
		form.Set("nodes", strings.Join(args, ","))
	}
	if clusterName != "" {
		form.Set("cluster", clusterName)
	}

	// status_all itself waits up to one call timeout plus slack
	client := rpc.NewClient(rpc.Config{
		Port:         cfg.Port,
		Timeout:      2*cfg.RPC.Timeout + cfg.Aggregate.Slack,
		MaxBodyBytes: cfg.RPC.MaxBodyBytes,
	})

	resp, err := client.Call(cmd.Context(), host, rpc.Request{
		Command: string(api.CommandStatusAll),
		Form:    form,
		Token:   token,
	})
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(resp.Body)))
		}
		return err
	}

	var status types.AggregateStatus
	if err := json.Unmarshal(resp.Body, &status); err != nil {
		return fmt.Errorf("failed to decode status: %w", err)
	}
	return printStatus(os.Stdout, status, output)
}

func printStatus(w io.Writer, status types.AggregateStatus, output string) error {
	switch output {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	case "yaml":
		// round-trip through JSON so error markers keep their wire shape
		raw, err := json.Marshal(status)
		if err != nil {
			return err
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return err
		}
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(doc)
	}

	nodes := make([]string, 0, len(status))
	for node := range status {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)

	tw := new(tabwriter.Writer)
	tw.Init(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "NODE\tSTATE\tCLUSTER\tCOROSYNC\tPACEMAKER\tRESOURCES\tUPTIME")
	for _, node := range nodes {
		result := status[node]
		if result.Failed() {
			state := "error: " + result.Err.Error
			if result.Err.Status != 0 {
				state = fmt.Sprintf("%s %d", state, result.Err.Status)
			}
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t-\t-\n", node, state)
			continue
		}
		r := result.Report
		fmt.Fprintf(tw, "%s\tok\t%s\t%s\t%s\t%d\t%s\n",
			node, orDash(r.ClusterName), running(r.CorosyncRunning), running(r.PacemakerRunning), len(r.Resources), r.Uptime)
	}
	return tw.Flush()
}

func running(b bool) string {
	if b {
		return "running"
	}
	return "stopped"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
