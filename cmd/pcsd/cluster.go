package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/pcsd/pkg/events"
	"github.com/cuemby/pcsd/pkg/types"
)

var clusterCmd = &cobra.Command{
	Use:   "cluster",
	Short: "Manage the cluster registry",
}

var clusterAddCmd = &cobra.Command{
	Use:   "add NAME NODE...",
	Short: "Register a cluster or replace its node list",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cluster := types.Cluster{Name: args[0], Nodes: args[1:]}
		if err := openRegistry(cfg).Add(cluster); err != nil {
			return err
		}
		events.Audit(&events.Event{
			Type:     events.EventClusterAdded,
			Message:  "cluster registered from the command line",
			Metadata: map[string]string{"cluster": cluster.Name, "nodes": strings.Join(cluster.Nodes, ",")},
		})
		fmt.Printf("Cluster %s registered with %d node(s)\n", cluster.Name, len(cluster.Nodes))
		return nil
	},
}

var clusterRemoveCmd = &cobra.Command{
	Use:     "remove NAME",
	Aliases: []string{"rm"},
	Short:   "Remove a cluster from the registry",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		removed, err := openRegistry(cfg).RemoveCluster(args[0])
		if err != nil {
			return err
		}
		if !removed {
			fmt.Printf("Cluster %s is not registered\n", args[0])
			return nil
		}
		events.Audit(&events.Event{
			Type:     events.EventClusterRemoved,
			Message:  "cluster removed from the command line",
			Metadata: map[string]string{"cluster": args[0]},
		})
		fmt.Printf("Cluster %s removed\n", args[0])
		return nil
	},
}

var clusterListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered clusters",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		clusters := openRegistry(cfg).Load()

		switch output {
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(clusters)
		case "yaml":
			return yaml.NewEncoder(os.Stdout).Encode(clusters)
		case "text":
		default:
			return fmt.Errorf("unknown output format %q", output)
		}

		tw := new(tabwriter.Writer)
		tw.Init(os.Stdout, 0, 8, 2, '\t', 0)
		fmt.Fprintln(tw, "NAME\tNODES")
		for _, c := range clusters {
			fmt.Fprintf(tw, "%s\t%s\n", c.Name, strings.Join(c.Nodes, ","))
		}
		return tw.Flush()
	},
}

func init() {
	clusterCmd.AddCommand(clusterAddCmd)
	clusterCmd.AddCommand(clusterRemoveCmd)
	clusterCmd.AddCommand(clusterListCmd)

	clusterListCmd.Flags().StringP("output", "o", "text", "output format (text, json, yaml)")
}
