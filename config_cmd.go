package main

import (
	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudfiles-go/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

// configShowOutput is the JSON schema for `config show --json`. Secrets
// are reported only as present or absent.
type configShowOutput struct {
	ConfigPath    string                 `json:"config_path"`
	TokenPath     string                 `json:"token_path"`
	AuthURL       string                 `json:"auth_url"`
	Auth          config.AuthConfig      `json:"auth"`
	Network       config.NetworkConfig   `json:"network"`
	Transfers     config.TransfersConfig `json:"transfers"`
	Logging       config.LoggingConfig   `json:"logging"`
	APIKeySet     bool                   `json:"api_key_set"`
	ProxyPassword bool                   `json:"proxy_password_set"`
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	r := cc.Cfg

	if cc.Flags.JSON {
		return printJSON(cc.Stdout, configShowOutput{
			ConfigPath:    r.ConfigPath,
			TokenPath:     r.TokenPath,
			AuthURL:       r.AuthEndpoint(),
			Auth:          r.Auth,
			Network:       r.Network,
			Transfers:     r.Transfers,
			Logging:       r.Logging,
			APIKeySet:     r.APIKey != "",
			ProxyPassword: r.ProxyPassword != "",
		})
	}

	return config.RenderEffective(r, cc.Stdout)
}
