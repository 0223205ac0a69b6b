// Command m2m-client is a reference device-management endpoint.
//
// It registers with a management server, renews the registration
// periodically, counts up the dynamic /Test/0/D resource and reports it,
// and accepts block-wise writes and reads of that resource. On SIGINT or
// SIGTERM it deregisters and exits once the server confirmed.
//
// Usage:
//
//	m2m-client --server tcp://127.0.0.1:5683 [flags]
//
// Examples:
//
//	# Register over plain TCP
//	m2m-client --server tcp://127.0.0.1:5683 --endpoint node-1
//
//	# Register over TLS with a client certificate, status on :9100
//	m2m-client --server tls://mgmt.example.com --security certificate \
//	    --cert node.crt --key node.key --ca ca.crt --status-addr :9100
//
//	# Find the server via mDNS and open the console
//	m2m-client --server mdns:m2m-server --interactive
//
// Every flag can also be set in a YAML file (--config) or through an
// M2M_* environment variable, for example M2M_SERVER.
package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// errInterrupted reports a shutdown before the registration succeeded.
var errInterrupted = errors.New("interrupted before registration completed")

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		flags      = defaultConfig()
	)

	cmd := &cobra.Command{
		Use:   "m2m-client",
		Short: "Reference device-management endpoint",
		Long: `m2m-client registers a constrained device with a management server,
keeps the registration alive, reports a counter resource and serves
block-wise transfers until it is told to shut down.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configPath, &flags, cmd.Flags().Changed)
			if err != nil {
				return err
			}
			if err := validateConfig(&cfg); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			applyDefaults(&cfg)
			return run(cmd.Context(), cfg)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "Configuration file path (YAML)")
	f.StringVar(&flags.Endpoint, "endpoint", flags.Endpoint, "Endpoint name")
	f.StringVar(&flags.Domain, "domain", flags.Domain, "Registration domain")
	f.StringVar(&flags.Type, "type", flags.Type, "Endpoint type")
	f.Uint32Var(&flags.Lifetime, "lifetime", flags.Lifetime, "Registration lifetime in seconds")
	f.StringVarP(&flags.Server, "server", "s", "", "Server URI: tcp://host:port, tls://host:port or mdns:instance")
	f.StringVar(&flags.Security, "security", flags.Security, "Security mode: none, psk, certificate")
	f.StringVar(&flags.CertFile, "cert", "", "Client certificate file (PEM)")
	f.StringVar(&flags.KeyFile, "key", "", "Client key file (PEM)")
	f.StringVar(&flags.CAFile, "ca", "", "CA certificate for the server (PEM)")
	f.IntVar(&flags.LocalPort, "local-port", 0, "Local source port (random in 1024-65535 if 0)")
	f.DurationVar(&flags.OperationTimeout, "operation-timeout", flags.OperationTimeout, "Timeout for register/update/deregister (0 disables)")
	f.DurationVar(&flags.RenewInterval, "renew-interval", flags.RenewInterval, "Interval between registration updates")
	f.IntVar(&flags.RetryAttempts, "retry", 0, "Restart a failed session this many times (0 exits on failure)")
	f.StringVar(&flags.StateFile, "state", "", "State file for location and counter")
	f.StringVar(&flags.ProtocolLog, "protocol-log", "", "Write protocol events to this .mlog file")
	f.StringVar(&flags.StatusAddr, "status-addr", "", "Serve /status and /metrics on this address")
	f.StringVar(&flags.LogLevel, "log-level", flags.LogLevel, "Log level: debug, info, warn, error")
	f.BoolVarP(&flags.Interactive, "interactive", "i", false, "Run the interactive console")

	return cmd
}

func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
}
