package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/config"
	"github.com/cuemby/pcsd/pkg/log"
	"github.com/cuemby/pcsd/pkg/registry"
	"github.com/cuemby/pcsd/pkg/rpc"
	"github.com/cuemby/pcsd/pkg/storage"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var (
	cfgFile string
	envFile string
	v       = viper.New()
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "pcsd",
	Short: "pcsd - Pacemaker/Corosync configuration daemon",
	Long: `pcsd serves the node-to-node API of a Pacemaker/Corosync cluster.

It authenticates peers with tokens, runs cluster commands on the local
node, relays them to other nodes and gathers the status of every node of
the registered clusters in one call.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"pcsd version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default "+config.DefaultConfigFile+")")
	flags.StringVar(&envFile, "env-file", config.DefaultEnvFile, "environment file loaded before PCSD_* variables")
	flags.String("data-dir", "", "directory holding tokens, clusters and peers")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "write logs as JSON")

	_ = v.BindPFlag("data_dir", flags.Lookup("data-dir"))
	_ = v.BindPFlag("log.level", flags.Lookup("log-level"))
	_ = v.BindPFlag("log.json", flags.Lookup("log-json"))

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(authCmd)
	rootCmd.AddCommand(userCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(clusterCmd)
	rootCmd.AddCommand(certCmd)
}

// loadConfig reads the configuration and initializes logging from it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, cfgFile, envFile)
	if err != nil {
		return nil, err
	}
	log.Init(log.Config{
		Level:      log.ParseLevel(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	return cfg, nil
}

// newRPCClient builds the node client, presenting tokens from peers
func newRPCClient(cfg *config.Config, peers rpc.TokenSource) *rpc.Client {
	return rpc.NewClient(rpc.Config{
		Port:         cfg.Port,
		Timeout:      cfg.RPC.Timeout,
		MaxBodyBytes: cfg.RPC.MaxBodyBytes,
		Tokens:       peers,
	})
}

// localToken returns token, or the token of the bootstrap credential when it
// is empty. It authorizes CLI calls to the local daemon.
func localToken(cfg *config.Config, token string) (string, error) {
	if token != "" {
		return token, nil
	}
	cred, ok := auth.NewCredentialStore(cfg.TokensFile).Credential(auth.SuperUser)
	if !ok {
		return "", fmt.Errorf("no %s credential in %s; run 'pcsd user create' or pass --token", auth.SuperUser, cfg.TokensFile)
	}
	return cred.Token, nil
}

func openPeers(cfg *config.Config) (*storage.BoltStore, error) {
	peers, err := storage.NewBoltStore(cfg.PeersDB)
	if err != nil {
		return nil, fmt.Errorf("failed to open peer store: %w", err)
	}
	return peers, nil
}

func openRegistry(cfg *config.Config) *registry.Registry {
	return registry.New(cfg.ClustersFile)
}

func newAuthenticator(cfg *config.Config) (*auth.Authenticator, error) {
	credentials := auth.NewCredentialStore(cfg.TokensFile)
	verifier, err := auth.NewVerifier(cfg.Auth.Backend, credentials)
	if err != nil {
		return nil, err
	}
	return auth.NewAuthenticator(credentials, verifier), nil
}
