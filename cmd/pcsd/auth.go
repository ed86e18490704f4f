package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/cuemby/pcsd/pkg/api"
	"github.com/cuemby/pcsd/pkg/auth"
	"github.com/cuemby/pcsd/pkg/events"
	"github.com/cuemby/pcsd/pkg/rpc"
)

var authCmd = &cobra.Command{
	Use:   "auth NODE...",
	Short: "Authenticate this node to other pcsd nodes",
	Long: `Ask the local pcsd to log in to pcsd on each NODE and keep the token it
issues. Later node calls from this daemon present that token.

Examples:
  # Authenticate to two nodes, prompting for the password
  pcsd auth cat8 ace8

  # Forget the tokens held for a node
  pcsd auth --remove ace8`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAuth,
}

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage the local credential",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create or replace the bootstrap credential",
	Long: `Write the bootstrap credential for the cluster administrator to the
credential store. The password is stored as a bcrypt hash and the printed
token is accepted by every remote command.`,
	RunE: runUserCreate,
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Manage tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue a new token without a password",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, _ := cmd.Flags().GetString("client")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		authenticator, err := newAuthenticator(cfg)
		if err != nil {
			return err
		}

		token, err := authenticator.IssueToken(auth.SuperUser, client)
		if err != nil {
			return err
		}
		events.Audit(&events.Event{
			Type:     events.EventTokenIssued,
			Message:  "token issued from the command line",
			Metadata: map[string]string{"user": auth.SuperUser, "client": client},
		})
		fmt.Println(token)
		return nil
	},
}

func init() {
	authCmd.Flags().StringP("username", "u", auth.SuperUser, "username")
	authCmd.Flags().StringP("password", "p", "", "password (prompted when empty)")
	authCmd.Flags().Bool("remove", false, "remove the stored tokens for NODE instead")
	authCmd.Flags().String("host", "localhost", "pcsd to configure")
	authCmd.Flags().String("token", "", "token for the local pcsd (default the "+auth.SuperUser+" credential token)")

	userCmd.AddCommand(userCreateCmd)
	userCreateCmd.Flags().StringP("username", "u", auth.SuperUser, "username")
	userCreateCmd.Flags().StringP("password", "p", "", "password (prompted when empty)")

	tokenCmd.AddCommand(tokenIssueCmd)
	tokenIssueCmd.Flags().String("client", "cli", "client recorded with the token")
}

func runAuth(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	remove, _ := cmd.Flags().GetBool("remove")
	host, _ := cmd.Flags().GetString("host")
	token, _ := cmd.Flags().GetString("token")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if token, err = localToken(cfg, token); err != nil {
		return err
	}

	form := url.Values{"nodes": args}
	req := rpc.Request{Command: "manage_auth", Path: "/manage/auth", Post: true, Form: form, Token: token}
	if remove {
		req.Command, req.Path = "manage_auth_remove", "/manage/auth/remove"
	} else {
		if password == "" {
			if password, err = readPassword(); err != nil {
				return err
			}
		}
		form.Set("username", username)
		form.Set("password", password)
	}

	// the daemon logs in to the nodes one after another
	client := rpc.NewClient(rpc.Config{
		Port:         cfg.Port,
		Timeout:      time.Duration(len(args)+1) * cfg.RPC.Timeout,
		MaxBodyBytes: cfg.RPC.MaxBodyBytes,
	})
	resp, err := client.Call(cmd.Context(), host, req)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("%w: %s", err, strings.TrimSpace(string(resp.Body)))
		}
		return err
	}

	if remove {
		var out struct {
			Removed []string `json:"removed"`
		}
		if err := json.Unmarshal(resp.Body, &out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
		for _, node := range out.Removed {
			fmt.Printf("%s: Removed\n", node)
		}
		return nil
	}

	var out api.PeerAuthResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return printPeerAuth(os.Stdout, args, out)
}

// printPeerAuth reports one line per node and fails when any node was not
// authorized
func printPeerAuth(w io.Writer, nodes []string, out api.PeerAuthResponse) error {
	var failed []string
	for _, node := range nodes {
		result, ok := out.Nodes[node]
		switch {
		case !ok:
			fmt.Fprintf(w, "%s: no answer\n", node)
			failed = append(failed, node)
		case result.Authorized:
			fmt.Fprintf(w, "%s: Authorized\n", node)
		default:
			fmt.Fprintf(w, "%s: %s\n", node, result.Reason)
			failed = append(failed, node)
		}
	}
	if len(failed) > 0 {
		return fmt.Errorf("unable to authenticate to %s", strings.Join(failed, ", "))
	}
	return nil
}

func runUserCreate(cmd *cobra.Command, args []string) error {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if password == "" {
		if password, err = readPassword(); err != nil {
			return err
		}
	}

	authenticator, err := newAuthenticator(cfg)
	if err != nil {
		return err
	}
	token, err := authenticator.CreateUser(username, password)
	if err != nil {
		return err
	}

	events.Audit(&events.Event{
		Type:     events.EventUserCreated,
		Message:  "bootstrap credential written",
		Metadata: map[string]string{"user": username},
	})
	fmt.Println(token)
	return nil
}

// readPassword prompts on a terminal and reads one line from stdin otherwise
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		fmt.Fprint(os.Stderr, "Password: ")
		b, err := term.ReadPassword(fd)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		return string(b), nil
	}

	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", errors.New("no password given")
	}
	return strings.TrimRight(line, "\r\n"), nil
}
