package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/cuemby/kvdeck/pkg/navigation"
	"github.com/cuemby/kvdeck/pkg/types"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{annotationNoClient: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "kvdeck version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
			return nil
		},
	}
}

func newPingCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the API server is reachable",
		Long: `Check that the API server accepts connections and answers the
unauthenticated CSRF endpoint. The login session is not used.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			results, err := a.client.Ping(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			tw := newTable(out, "CHECK", "STATUS", "LATENCY", "MESSAGE")
			labels := []string{"tcp", "api"}
			for i, r := range results {
				row(tw, labels[i], healthLabel(r.Healthy), r.Duration.Round(time.Millisecond), r.Message)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			last := results[len(results)-1]
			if !last.Healthy {
				return fmt.Errorf("%s is unreachable: %s", a.client.Server(), last.Message)
			}
			return nil
		},
	}
}

func newLoginCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to the API server",
		Long: `Sign in to the API server. The session cookie is stored sealed in the
data directory and reused by later invocations until it expires or the
server rejects it.

Examples:
  # Prompt for username and password
  kvdeck login

  # Read the password from stdin
  echo "$PASSWORD" | kvdeck login -u admin --password-stdin`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if a.decision.RedirectTo == navigation.RouteDashboard {
				fmt.Fprintf(out, "Already logged in as %s\n", a.client.Guard().User().Username)
				return nil
			}

			username, _ := cmd.Flags().GetString("username")
			fromStdin, _ := cmd.Flags().GetBool("password-stdin")
			creds, err := readCredentials(cmd, username, fromStdin)
			if err != nil {
				return err
			}

			user, _, err := a.client.Login(cmd.Context(), creds)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Logged in as %s\n", user.Username)
			return nil
		},
	}

	cmd.Flags().StringP("username", "u", "", "Username")
	cmd.Flags().Bool("password-stdin", false, "Read the password from stdin")
	return withRoute(cmd, navigation.RouteLogin)
}

func readCredentials(cmd *cobra.Command, username string, fromStdin bool) (types.Credentials, error) {
	in := bufio.NewReader(cmd.InOrStdin())
	out := cmd.ErrOrStderr()

	if fromStdin && username == "" {
		return types.Credentials{}, errors.New("--password-stdin requires --username")
	}

	if username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := in.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return types.Credentials{}, fmt.Errorf("failed to read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}

	var password string
	switch {
	case fromStdin:
		data, err := io.ReadAll(in)
		if err != nil {
			return types.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(string(data), "\r\n")
	case term.IsTerminal(int(os.Stdin.Fd())):
		fmt.Fprint(out, "Password: ")
		data, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(out)
		if err != nil {
			return types.Credentials{}, fmt.Errorf("failed to read password: %w", err)
		}
		password = string(data)
	default:
		return types.Credentials{}, errors.New("no terminal to prompt for a password, use --password-stdin")
	}

	if username == "" || password == "" {
		return types.Credentials{}, errors.New("username and password are required")
	}
	return types.Credentials{Username: username, Password: password}, nil
}

func newLogoutCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session",
		RunE: func(cmd *cobra.Command, args []string) error {
			a.client.Logout(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "whoami",
		Short: "Show the signed-in user",
		RunE: func(cmd *cobra.Command, args []string) error {
			user := a.client.Guard().User()
			out := cmd.OutOrStdout()
			if jsonOutput(cmd) {
				return printJSON(out, user)
			}

			fmt.Fprintf(out, "Username: %s\n", user.Username)
			if user.Email != "" {
				fmt.Fprintf(out, "Email:    %s\n", user.Email)
			}
			fmt.Fprintf(out, "Staff:    %s\n", yesNo(user.IsStaff))
			fmt.Fprintf(out, "Server:   %s\n", a.client.Server())
			return nil
		},
	}
	return withRoute(cmd, navigation.RouteDashboard)
}
