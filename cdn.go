package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/cloudfiles-go/internal/cloudfiles"
)

// defaultCDNTTL is the edge cache lifetime applied by `cdn enable` when no
// --ttl is given; -1 leaves the service default in place.
const defaultCDNTTL = -1

func newCDNCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cdn",
		Short: "Publish containers through the CDN",
	}

	enable := &cobra.Command{
		Use:   "enable <container>",
		Short: "Publish a container and print its CDN URI",
		Args:  cobra.ExactArgs(1),
		RunE:  runCDNEnable,
	}
	enable.Flags().Int("ttl", defaultCDNTTL, "edge cache lifetime in seconds")

	update := &cobra.Command{
		Use:   "update <container>",
		Short: "Change the TTL or log retention of a public container",
		Args:  cobra.ExactArgs(1),
		RunE:  runCDNUpdate,
	}
	update.Flags().Int("ttl", defaultCDNTTL, "edge cache lifetime in seconds")
	update.Flags().Bool("logs", false, "retain CDN access logs")

	purge := &cobra.Command{
		Use:   "purge <container[/name]>",
		Short: "Evict a container or object from the edge caches",
		Args:  cobra.ExactArgs(1),
		RunE:  runCDNPurge,
	}
	purge.Flags().StringSlice("email", nil, "address to notify when the purge completes (repeatable)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "ls",
			Short: "List public containers",
			Args:  cobra.NoArgs,
			RunE:  runCDNLs,
		},
		enable,
		&cobra.Command{
			Use:   "disable <container>",
			Short: "Stop publishing a container",
			Args:  cobra.ExactArgs(1),
			RunE:  runCDNDisable,
		},
		&cobra.Command{
			Use:   "info <container>",
			Short: "Show a container's CDN state",
			Args:  cobra.ExactArgs(1),
			RunE:  runCDNInfo,
		},
		update,
		purge,
	)

	return cmd
}

func runCDNLs(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		names, err := conn.GetPublicContainers(ctx)
		if err != nil {
			return fmt.Errorf("listing public containers: %w", err)
		}

		sort.Strings(names)

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, names)
		}

		for _, n := range names {
			fmt.Fprintln(cc.Stdout, n)
		}

		return nil
	})
}

func runCDNEnable(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	ttl, _ := cmd.Flags().GetInt("ttl")

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		uri, err := conn.MarkContainerAsPublic(ctx, args[0], ttl)
		if err != nil {
			return fmt.Errorf("publishing %q: %w", args[0], err)
		}

		cc.Logger.Info("container published", "container", args[0], "cdn_uri", uri, "ttl", ttl)

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, map[string]string{"container": args[0], "cdn_uri": uri})
		}

		fmt.Fprintln(cc.Stdout, uri)

		return nil
	})
}

func runCDNDisable(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		if err := conn.MarkContainerAsPrivate(ctx, args[0]); err != nil {
			return fmt.Errorf("unpublishing %q: %w", args[0], err)
		}

		cc.Statusf("Container %s is no longer public\n", args[0])

		return nil
	})
}

// cdnInfoOutput is the JSON output schema for `cdn info`.
type cdnInfoOutput struct {
	Name         string `json:"name"`
	Enabled      bool   `json:"cdn_enabled"`
	URI          string `json:"cdn_uri,omitempty"`
	SSLURI       string `json:"cdn_ssl_uri,omitempty"`
	StreamingURI string `json:"cdn_streaming_uri,omitempty"`
	TTL          int    `json:"ttl"`
	LogRetention bool   `json:"log_retention"`
}

func runCDNInfo(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		pc, err := conn.GetPublicContainerInformation(ctx, args[0])
		if err != nil {
			return fmt.Errorf("reading CDN state of %q: %w", args[0], err)
		}

		out := cdnInfoOutput{
			Name:         pc.Name,
			Enabled:      pc.CDNEnabled,
			URI:          pc.CDNURI,
			SSLURI:       pc.CDNSSLURI,
			StreamingURI: pc.CDNStreamingURI,
			TTL:          pc.TTL,
			LogRetention: pc.LogRetention,
		}

		if cc.Flags.JSON {
			return printJSON(cc.Stdout, out)
		}

		fmt.Fprintf(cc.Stdout, "Container:  %s\n", out.Name)
		fmt.Fprintf(cc.Stdout, "Enabled:    %t\n", out.Enabled)
		fmt.Fprintf(cc.Stdout, "URI:        %s\n", out.URI)
		fmt.Fprintf(cc.Stdout, "SSL URI:    %s\n", out.SSLURI)

		if out.StreamingURI != "" {
			fmt.Fprintf(cc.Stdout, "Streaming:  %s\n", out.StreamingURI)
		}

		fmt.Fprintf(cc.Stdout, "TTL:        %ds\n", out.TTL)
		fmt.Fprintf(cc.Stdout, "Logs:       %t\n", out.LogRetention)

		return nil
	})
}

func runCDNUpdate(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	ttl, _ := cmd.Flags().GetInt("ttl")
	logs, _ := cmd.Flags().GetBool("logs")

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		if err := conn.SetDetailsOnPublicContainer(ctx, args[0], logs, ttl); err != nil {
			return fmt.Errorf("updating CDN settings of %q: %w", args[0], err)
		}

		cc.Statusf("Updated CDN settings of %s\n", args[0])

		return nil
	})
}

func runCDNPurge(cmd *cobra.Command, args []string) error {
	cc := mustCLIContext(cmd.Context())
	ctx := cmd.Context()
	emails, _ := cmd.Flags().GetStringSlice("email")
	container, name := splitTarget(args[0])

	return withConnection(ctx, cc, func(conn *cloudfiles.Connection) error {
		var err error
		if name == "" {
			err = conn.PurgePublicContainer(ctx, container, emails)
		} else {
			err = conn.PurgePublicStorageItem(ctx, container, name, emails)
		}

		if err != nil {
			return fmt.Errorf("purging %s: %w", args[0], err)
		}

		cc.Statusf("Purge requested for %s\n", args[0])

		return nil
	})
}
