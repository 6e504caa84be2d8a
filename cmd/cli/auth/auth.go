package auth

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/crucial707/spendflow/cmd/cli/client"
	"github.com/crucial707/spendflow/cmd/cli/config"
	"github.com/crucial707/spendflow/cmd/cli/output"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

type profile struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Username string `json:"username"`
}

type authResponse struct {
	Token string  `json:"token"`
	User  profile `json:"user"`
}

// InitAuth registers account commands on the root command.
func InitAuth(rootCmd *cobra.Command) {
	rootCmd.AddCommand(
		registerCmd(),
		loginCmd(),
		logoutCmd(),
		meCmd(),
		deleteAccountCmd(),
		checkUsernameCmd(),
	)
}

// ==========================
// Register
// ==========================
func registerCmd() *cobra.Command {
	var name, username, password string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account and log in",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if name == "" {
				if name, err = prompt(cmd, in, "Name: "); err != nil {
					return err
				}
			}
			if username == "" {
				if username, err = prompt(cmd, in, "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(cmd, in); err != nil {
					return err
				}
			}

			var resp authResponse
			err = client.New().Do("POST", "/register", map[string]string{
				"name":     name,
				"username": username,
				"password": password,
			}, &resp)
			if err != nil {
				return err
			}
			return saveSession(cmd, resp, "Account created")
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&username, "username", "", "username (3-20 lowercase letters, digits or _)")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

// ==========================
// Login
// ==========================
func loginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the token locally",
		RunE: func(cmd *cobra.Command, args []string) error {
			in := bufio.NewReader(cmd.InOrStdin())
			var err error
			if username == "" {
				if username, err = prompt(cmd, in, "Username: "); err != nil {
					return err
				}
			}
			if password == "" {
				if password, err = promptPassword(cmd, in); err != nil {
					return err
				}
			}

			var resp authResponse
			if err := client.New().Do("POST", "/login", map[string]string{
				"username": username,
				"password": password,
			}, &resp); err != nil {
				return err
			}
			return saveSession(cmd, resp, "Logged in")
		},
	}

	cmd.Flags().StringVar(&username, "username", "", "username")
	cmd.Flags().StringVar(&password, "password", "", "password (prompted when omitted)")
	return cmd
}

func saveSession(cmd *cobra.Command, resp authResponse, verb string) error {
	if resp.Token == "" {
		return fmt.Errorf("no token returned by API")
	}
	if err := config.SaveToken(resp.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s as %s (%s).\n", verb, resp.User.Username, resp.User.Name)
	return nil
}

// ==========================
// Logout
// ==========================
func logoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the locally saved token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.ClearToken(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}

// ==========================
// Me
// ==========================
func meCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "me",
		Short: "Show the logged in account",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Authed()
			if err != nil {
				return err
			}
			var p profile
			if err := c.Do("GET", "/me", nil, &p); err != nil {
				return err
			}
			if asJSON {
				return output.PrintJSON(cmd.OutOrStdout(), p)
			}
			output.RenderTable(cmd.OutOrStdout(), []string{"ID", "Name", "Username"}, [][]interface{}{{p.ID, p.Name, p.Username}})
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

// ==========================
// Delete Account
// ==========================
func deleteAccountCmd() *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-account",
		Short: "Permanently delete the account and all of its expenses",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.Authed()
			if err != nil {
				return err
			}
			if !yes {
				answer, err := prompt(cmd, bufio.NewReader(cmd.InOrStdin()),
					"This deletes your account and every expense. Type 'delete' to confirm: ")
				if err != nil {
					return err
				}
				if answer != "delete" {
					fmt.Fprintln(cmd.OutOrStdout(), "Cancelled.")
					return nil
				}
			}

			var resp struct {
				Message string `json:"message"`
			}
			if err := c.Do("DELETE", "/delete-account", nil, &resp); err != nil {
				return err
			}
			if err := config.ClearState(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Account deleted.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "skip the confirmation prompt")
	return cmd
}

// ==========================
// Check Username
// ==========================
func checkUsernameCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check-username [username]",
		Short: "Check whether a username is free",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var resp struct {
				Available bool   `json:"available"`
				Reason    string `json:"reason"`
			}
			if err := client.New().Do("GET", "/check-username?username="+url.QueryEscape(args[0]), nil, &resp); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case resp.Available:
				fmt.Fprintf(out, "%q is available.\n", args[0])
			case resp.Reason == "invalid":
				fmt.Fprintln(out, "Invalid: use 3-20 lowercase letters, digits or underscores.")
			default:
				fmt.Fprintf(out, "%q is already taken.\n", args[0])
			}
			return nil
		},
	}
}

func prompt(cmd *cobra.Command, in *bufio.Reader, label string) (string, error) {
	fmt.Fprint(cmd.OutOrStdout(), label)
	line, err := in.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", fmt.Errorf("read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads without echo from a terminal, else a plain line from in.
func promptPassword(cmd *cobra.Command, in *bufio.Reader) (string, error) {
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprint(cmd.OutOrStdout(), "Password: ")
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
		return string(b), nil
	}
	return prompt(cmd, in, "Password: ")
}
