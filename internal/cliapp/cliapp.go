// Package cliapp is the command-line front end: flag parsing and the
// env-var/relative-path resolution the bridge server needs before it can
// bind and start serving.
package cliapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kndysfm/webhidbridge/internal/bridgeserver"
)

const (
	defaultPort    = 8080
	defaultDocRoot = "."
)

// New builds the root command. Flags -a/-P/-A/-r/-D/-i/-s are accepted for
// CLI-surface completeness but are inert: authentication, TLS termination,
// rewrites, hexdump tracing, and CGI are out of scope for the core.
func New(version string) *cobra.Command {
	root := &cobra.Command{
		Use:     "webhidbridge",
		Short:   "expose local HID devices to browser clients over HTTP and WebSocket",
		Version: version,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			docroot := cmd.Flag("docroot").Value.String()
			resolved, err := resolvePath(docroot)
			if err != nil {
				return err
			}
			return cmd.Flag("docroot").Value.Set(resolved)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			port, err := cmd.Flags().GetInt("port")
			if err != nil {
				return err
			}
			docroot := cmd.Flag("docroot").Value.String()

			srv := bridgeserver.New(bridgeserver.Config{
				Port:    port,
				DocRoot: docroot,
			})
			return srv.Run(context.Background())
		},
	}

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(cmd.Parent().Version)
		},
	})

	port := envInt("WEBHID_PORT", defaultPort)
	docroot := os.Getenv("WEBHID_DOCROOT")
	if docroot == "" {
		docroot = defaultDocRoot
	}

	root.CompletionOptions = cobra.CompletionOptions{DisableDefaultCmd: true}
	flags := root.PersistentFlags()
	flags.IntP("port", "p", port, "TCP port to listen on")
	flags.StringP("docroot", "d", docroot, "static file document root")
	flags.StringP("auth-domain", "a", "", "authentication domain (unused, accepted for CLI-surface completeness)")
	flags.StringP("global-auth", "P", "", "global auth file (unused, accepted for CLI-surface completeness)")
	flags.StringP("per-dir-auth", "A", "", "per-directory auth file (unused, accepted for CLI-surface completeness)")
	flags.StringP("rewrite", "r", "", "URL rewrite rules (unused, accepted for CLI-surface completeness)")
	flags.StringP("hexdump", "D", "", "hexdump trace file (unused, accepted for CLI-surface completeness)")
	flags.StringP("cgi-interp", "i", "", "CGI interpreter (unused, accepted for CLI-surface completeness)")
	flags.StringP("ssl-cert", "s", "", "TLS certificate (unused, accepted for CLI-surface completeness)")

	return root
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func resolvePath(p string) (string, error) {
	if strings.HasPrefix(p, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	if filepath.IsAbs(p) {
		return p, nil
	}
	workdir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(workdir, p), nil
}
