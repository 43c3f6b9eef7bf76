package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
	"github.com/tonimelisma/cloudfiles-go/internal/tokenfile"
)

func newLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Authenticate and cache the session token",
		Long: `Exchange the username and API key for a session token and cache it.

The API key is read from CLOUDFILES_API_KEY, or prompted for when stdin is
a terminal. The key itself is never written to disk; only the session
token and its endpoints are cached, and they expire after 24 hours.`,
		Args: cobra.NoArgs,
		RunE: runLogin,
	}
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the cached session token",
		Args:  cobra.NoArgs,
		RunE:  runLogout,
	}
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Display the account, its endpoints, and usage",
		Args:  cobra.NoArgs,
		RunE:  runWhoami,
	}
}

// sessionOutput is the JSON schema for `login --json` and the session part
// of `whoami --json`.
type sessionOutput struct {
	Username   string    `json:"username"`
	StorageURL string    `json:"storage_url"`
	CDNURL     string    `json:"cdn_management_url,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
}

func newSessionOutput(username string, sess cloudfiles.Session) sessionOutput {
	return sessionOutput{
		Username:   username,
		StorageURL: sess.StorageURL,
		CDNURL:     sess.CDNManagementURL,
		ExpiresAt:  sess.Expiry().UTC(),
	}
}

func runLogin(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	username := cc.Cfg.Auth.Username

	conn, err := newConnection(cc)
	if err != nil {
		return err
	}
	defer conn.Close()

	cc.Logger.Info("login started", "username", username, "auth_url", cc.Cfg.AuthEndpoint())

	if err := conn.Authenticate(cmd.Context()); err != nil {
		return err
	}

	sess, _ := conn.Session()
	if err := tokenfile.SaveSession(cc.Cfg.TokenPath, username, sess); err != nil {
		return fmt.Errorf("caching session: %w", err)
	}

	cc.Logger.Info("login successful", "username", username, "token_path", cc.Cfg.TokenPath)

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, newSessionOutput(username, sess))
	}

	cc.Statusf("Logged in as %s.\n", username)

	return nil
}

func runLogout(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	cc.Logger.Info("logout started", "token_path", cc.Cfg.TokenPath)

	if err := tokenfile.Remove(cc.Cfg.TokenPath); err != nil {
		return err
	}

	cc.Statusf("Logged out.\n")

	return nil
}

// whoamiOutput is the JSON schema for `whoami --json`.
type whoamiOutput struct {
	sessionOutput
	ContainerCount int64 `json:"container_count"`
	BytesUsed      int64 `json:"bytes_used"`
}

func runWhoami(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	username := cc.Cfg.Auth.Username

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		info, err := conn.GetAccountInformation(ctx)
		if err != nil {
			return fmt.Errorf("fetching account information: %w", err)
		}

		sess, _ := conn.Session()
		out := whoamiOutput{
			sessionOutput:  newSessionOutput(username, sess),
			ContainerCount: info.ContainerCount,
			BytesUsed:      info.BytesUsed,
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, out)
		}

		cdn := out.CDNURL
		if cdn == "" {
			cdn = "(none)"
		}

		fmt.Fprintf(cc.Stdout, "User:        %s\n", out.Username)
		fmt.Fprintf(cc.Stdout, "Storage:     %s\n", out.StorageURL)
		fmt.Fprintf(cc.Stdout, "CDN:         %s\n", cdn)
		fmt.Fprintf(cc.Stdout, "Containers:  %d\n", out.ContainerCount)
		fmt.Fprintf(cc.Stdout, "Used:        %s\n", formatSize(out.BytesUsed))
		fmt.Fprintf(cc.Stdout, "Expires:     %s\n", out.ExpiresAt.Local().Format(time.RFC1123))

		return nil
	})
}
