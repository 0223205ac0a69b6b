// Command m2m-server is a minimal management server for m2m-client.
//
// It accepts registrations, keeps a registration directory, records the
// values endpoints report and lets an operator read, write and execute
// resources, including block-wise transfers, from a console.
//
// Usage:
//
//	m2m-server [flags]
//
// Examples:
//
//	# Plain TCP on the default port, console enabled
//	m2m-server --listen :5683 --interactive
//
//	# TLS with client certificates, advertised over mDNS
//	m2m-server --cert srv.crt --key srv.key --ca ca.crt --advertise m2m-server
package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mash-protocol/m2m-client/pkg/discovery"
	"github.com/mash-protocol/m2m-client/pkg/interaction"
	"github.com/mash-protocol/m2m-client/pkg/log"
	"github.com/mash-protocol/m2m-client/pkg/persistence"
	"github.com/mash-protocol/m2m-client/pkg/transport"
)

type options struct {
	Listen         string
	CertFile       string
	KeyFile        string
	CAFile         string
	StateFile      string
	Advertise      string
	Domain         string
	RequestTimeout time.Duration
	ProtocolLog    string
	LogLevel       string
	Interactive    bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:           "m2m-server",
		Short:         "Minimal device-management server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (opts.CertFile == "") != (opts.KeyFile == "") {
				return errors.New("cert and key must be given together")
			}
			if opts.Advertise != "" {
				if err := discovery.ValidateInstanceName(opts.Advertise); err != nil {
					return err
				}
			}
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.Listen, "listen", "l", fmt.Sprintf(":%d", transport.DefaultPort), "Listen address")
	f.StringVar(&opts.CertFile, "cert", "", "Server certificate file (PEM); enables TLS")
	f.StringVar(&opts.KeyFile, "key", "", "Server key file (PEM)")
	f.StringVar(&opts.CAFile, "ca", "", "CA for client certificates (PEM); requires client auth")
	f.StringVar(&opts.StateFile, "state", "", "Registration directory file")
	f.StringVar(&opts.Advertise, "advertise", "", "Advertise over mDNS with this instance name")
	f.StringVar(&opts.Domain, "domain", "", "Domain announced in the mDNS TXT record")
	f.DurationVar(&opts.RequestTimeout, "request-timeout", interaction.DefaultRequestTimeout, "Timeout for requests to endpoints")
	f.StringVar(&opts.ProtocolLog, "protocol-log", "", "Write protocol events to this .mlog file")
	f.StringVar(&opts.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
	f.BoolVarP(&opts.Interactive, "interactive", "i", false, "Run the interactive console")

	return cmd
}

func run(ctx context.Context, opts options) error {
	level, err := parseLogLevel(opts.LogLevel)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var out io.Writer = os.Stderr
	var con *console
	srv := &serverHandle{}
	if opts.Interactive {
		con, err = newConsole(srv, opts.RequestTimeout)
		if err != nil {
			return err
		}
		out = con.Stdout()
	}
	logger := slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	var protoLog log.Logger
	if opts.ProtocolLog != "" {
		fl, err := log.NewFileLogger(opts.ProtocolLog)
		if err != nil {
			return fmt.Errorf("open protocol log: %w", err)
		}
		defer fl.Close()
		protoLog = fl
	}

	var state *persistence.ServerStateStore
	if opts.StateFile != "" {
		state = persistence.NewServerStateStore(opts.StateFile)
	}

	is, err := interaction.NewServer(interaction.ServerConfig{
		State:          state,
		RequestTimeout: opts.RequestTimeout,
		ProtocolLogger: protoLog,
		Logger:         logger,
		OnRegistration: func(rec persistence.RegistrationRecord, removed bool) {
			if removed {
				logger.Info("endpoint deregistered", "endpoint", rec.Endpoint, "location", rec.Location)
				return
			}
			logger.Info("endpoint registered", "endpoint", rec.Endpoint, "location", rec.Location,
				"lifetime", rec.Lifetime, "objects", strings.Join(rec.Objects, ","))
		},
		OnNotify: func(endpoint, path string, value []byte) {
			logger.Info("notify", "endpoint", endpoint, "path", path, "value", string(value))
		},
	})
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}
	srv.Server = is

	var tlsConfig *tls.Config
	if opts.CertFile != "" {
		tlsConfig, err = transport.NewServerTLSConfig(transport.TLSConfig{
			CertFile: opts.CertFile,
			KeyFile:  opts.KeyFile,
			CAFile:   opts.CAFile,
		})
		if err != nil {
			return err
		}
	}

	ts := transport.NewServer(transport.ServerConfig{
		Address:      opts.Listen,
		TLS:          tlsConfig,
		Logger:       protoLog,
		OnMessage:    is.HandleMessage,
		OnDisconnect: is.HandleDisconnect,
		OnError: func(conn *transport.Conn, err error) {
			if conn != nil {
				logger.Debug("connection error", "conn", conn.ID(), "error", err)
				return
			}
			logger.Warn("accept error", "error", err)
		},
	})
	if err := ts.Start(ctx); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	logger.Info("listening", "addr", ts.Addr().String(), "tls", tlsConfig != nil)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		<-gctx.Done()
		return ts.Stop()
	})

	if opts.Advertise != "" {
		adv := discovery.NewAdvertiser(discovery.AdvertiserConfig{})
		info := &discovery.ServerInfo{
			Instance: opts.Advertise,
			Port:     listenPort(ts.Addr()),
			Secure:   tlsConfig != nil,
			Domain:   opts.Domain,
			Version:  discovery.ProtocolVersion,
		}
		if err := adv.Advertise(gctx, info); err != nil {
			logger.Warn("mDNS advertisement failed", "error", err)
		} else {
			logger.Info("advertising", "instance", info.Instance, "service", discovery.ServiceType)
			g.Go(func() error {
				<-gctx.Done()
				adv.Stop()
				return nil
			})
		}
	}

	if con != nil {
		g.Go(func() error {
			con.run(gctx, cancel)
			return nil
		})
	}

	err = g.Wait()
	logger.Info("server stopped", "registrations", len(is.Registrations()))
	return err
}

// serverHandle lets the console be created before the server exists.
type serverHandle struct {
	*interaction.Server
}

func listenPort(addr net.Addr) uint16 {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return uint16(tcp.Port)
	}
	return 0
}

func parseLogLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", level)
	}
	return l, nil
}
