package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/pcsd/pkg/security"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Inspect the node certificate",
}

var certShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the node certificate",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		cert, err := security.LoadCertFromFile(cfg.CertDir)
		if err != nil {
			return fmt.Errorf("failed to load node certificate: %w", err)
		}

		info := security.GetCertInfo(cert.Leaf)
		info["needs_rotation"] = security.CertNeedsRotation(cert.Leaf)
		return yaml.NewEncoder(os.Stdout).Encode(info)
	},
}

func init() {
	certCmd.AddCommand(certShowCmd)
}
