package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/cuemby/pcsd/pkg/aggregator"
	"github.com/cuemby/pcsd/pkg/api"
	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/events"
	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/metrics"
	"github.com/cuemby/pcsd/pkg/pcs"
	"github.com/cuemby/pcsd/pkg/security"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pcsd daemon",
	Long: `Run the pcsd daemon on this node.

On first start a self-signed certificate is generated in the certificate
directory. The daemon serves /remote/<command> over HTTPS until it receives
SIGINT or SIGTERM.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("bind", "", "address to listen on (default all)")
	serveCmd.Flags().Int("port", 2224, "port to listen on")
	serveCmd.Flags().String("node-name", "", "name of this node (default hostname)")

	_ = v.BindPFlag("bind", serveCmd.Flags().Lookup("bind"))
	_ = v.BindPFlag("port", serveCmd.Flags().Lookup("port"))
	_ = v.BindPFlag("node_name", serveCmd.Flags().Lookup("node-name"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := log.WithNode(cfg.NodeName)
	metrics.SetVersion(Version)
	metrics.SetCriticalComponents(metrics.ComponentAPI, metrics.ComponentPeerStore, metrics.ComponentCredentialStore)

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	cert, err := security.EnsureNodeCert(cfg.CertDir, cfg.NodeName)
	if err != nil {
		return fmt.Errorf("failed to prepare node certificate: %w", err)
	}
	logger.Info().Time("not_after", cert.Leaf.NotAfter).Msg("node certificate loaded")

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}

	peers, err := openPeers(cfg)
	if err != nil {
		return err
	}
	defer peers.Close()

	clusters := openRegistry(cfg)
	client := newRPCClient(cfg, peers)
	agg := aggregator.New(client, aggregator.Config{
		Concurrency: cfg.Aggregate.Concurrency,
		CallTimeout: cfg.RPC.Timeout,
		Slack:       cfg.Aggregate.Slack,
	})

	local := pcs.NewCluster(pcs.NewRunner(cfg.Tools.Timeout), pcs.Tools{
		PCS:       cfg.Tools.PCS,
		CrmMon:    cfg.Tools.CrmMon,
		Cibadmin:  cfg.Tools.Cibadmin,
		Cmapctl:   cfg.Tools.Cmapctl,
		Systemctl: cfg.Tools.Systemctl,
	})

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	stopAudit := events.LogEvents(broker)
	defer stopAudit()

	clusterName := local.ClusterName(cmd.Context())
	dispatcher := api.NewDispatcher(api.DispatcherConfig{
		Context:       api.Context{NodeName: cfg.NodeName, ClusterName: clusterName},
		Authenticator: authenticator,
		Cluster:       local,
		Registry:      clusters,
		Aggregator:    agg,
		Forwarder:     client,
		Events:        broker,
	})

	sessions, err := auth.NewSessionManager([]byte(cfg.SessionSecret), true)
	if err != nil {
		return err
	}
	server := api.NewServer(api.ServerConfig{
		CORSOrigins: cfg.CORS.Origins,
		CertFile:    filepath.Join(cfg.CertDir, security.CertFile),
		KeyFile:     filepath.Join(cfg.CertDir, security.KeyFile),
		LoginRate:   cfg.Auth.LoginRate,
		LoginBurst:  cfg.Auth.LoginBurst,
		Peers:       peers,
		PeerAuth:    client,
	}, dispatcher, sessions)

	collector := metrics.NewCollector(&api.State{
		Credentials: authenticator.Store(),
		Registry:    clusters,
		Peers:       peers,
	}, 0)
	collector.Start()
	defer collector.Stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddr())
	}()
	metrics.RegisterComponent(metrics.ComponentAPI, true, "")

	logger.Info().
		Str("addr", cfg.ListenAddr()).
		Str("cluster", clusterName).
		Str("version", Version).
		Msg("pcsd started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			metrics.UpdateComponent(metrics.ComponentAPI, false, err.Error())
			return err
		}
		return nil
	}

	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(ctx); err != nil {
		return fmt.Errorf("failed to shutdown: %w", err)
	}

	logger.Info().Msg("shutdown complete")
	return nil
}
