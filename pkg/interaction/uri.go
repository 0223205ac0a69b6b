package interaction

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/mash-protocol/m2m-client/pkg/transport"
)

// URI schemes accepted for the management server.
const (
	SchemeTCP  = "tcp"
	SchemeTLS  = "tls"
	SchemeMDNS = "mdns"
)

// ErrInvalidURI is returned for server URIs that cannot be parsed.
var ErrInvalidURI = errors.New("invalid server URI")

// Resolver finds the address of an advertised management server.
type Resolver interface {
	Resolve(ctx context.Context, instance string) (string, error)
}

// ServerURI is a parsed management server URI.
type ServerURI struct {
	Scheme string

	// Address is host:port for tcp and tls.
	Address string

	// Instance is the advertised service name for mdns.
	Instance string
}

// ParseServerURI parses "tcp://host[:port]", "tls://host[:port]",
// "mdns:instance" or a bare "host[:port]". The port defaults to
// transport.DefaultPort.
func ParseServerURI(uri string) (ServerURI, error) {
	if uri == "" {
		return ServerURI{}, fmt.Errorf("%w: empty", ErrInvalidURI)
	}
	if rest, ok := strings.CutPrefix(uri, SchemeMDNS+":"); ok {
		rest = strings.TrimPrefix(rest, "//")
		if rest == "" {
			return ServerURI{}, fmt.Errorf("%w: %q has no instance", ErrInvalidURI, uri)
		}
		return ServerURI{Scheme: SchemeMDNS, Instance: rest}, nil
	}

	scheme, hostport := SchemeTCP, uri
	if s, rest, ok := strings.Cut(uri, "://"); ok {
		scheme, hostport = strings.ToLower(s), rest
	}
	if scheme != SchemeTCP && scheme != SchemeTLS {
		return ServerURI{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURI, scheme)
	}
	hostport = strings.TrimSuffix(hostport, "/")
	if hostport == "" {
		return ServerURI{}, fmt.Errorf("%w: %q has no host", ErrInvalidURI, uri)
	}

	host, port, err := net.SplitHostPort(hostport)
	if err != nil {
		host, port = strings.Trim(hostport, "[]"), strconv.Itoa(transport.DefaultPort)
	}
	if host == "" {
		return ServerURI{}, fmt.Errorf("%w: %q has no host", ErrInvalidURI, uri)
	}
	if _, err := strconv.ParseUint(port, 10, 16); err != nil {
		return ServerURI{}, fmt.Errorf("%w: bad port %q", ErrInvalidURI, port)
	}
	return ServerURI{Scheme: scheme, Address: net.JoinHostPort(host, port)}, nil
}
