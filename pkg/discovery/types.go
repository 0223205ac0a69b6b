package discovery

import (
	"context"
	"errors"
	"net"
	"strconv"
	"time"
)

// Service type constants for mDNS.
const (
	// ServiceType is the service type advertised by management servers.
	ServiceType = "_m2m._tcp"

	// Domain is the mDNS domain.
	Domain = "local"

	// ProtocolVersion is the version announced in the v TXT key.
	ProtocolVersion = "1"
)

// TXT record key constants.
const (
	TXTKeyVersion = "v"
	TXTKeySecure  = "sec"
	TXTKeyDomain  = "dom"
)

const (
	// BrowseTimeout is the default timeout for resolving an instance.
	BrowseTimeout = 5 * time.Second

	// MaxInstanceNameLen is the DNS label limit.
	MaxInstanceNameLen = 63
)

// Discovery errors.
var (
	ErrInvalidTXTRecord    = errors.New("invalid TXT record format")
	ErrMissingRequired     = errors.New("missing required field")
	ErrInstanceNameTooLong = errors.New("instance name exceeds 63 characters")
	ErrNotFound            = errors.New("service not found")
	ErrNoAddress           = errors.New("service has no address")
)

// ServerInfo is what a management server advertises.
type ServerInfo struct {
	Instance string
	Port     uint16
	Secure   bool
	Domain   string
	Version  string
}

// ServerService is a discovered management server.
type ServerService struct {
	ServerInfo
	Host      string
	Addresses []string
}

// Address returns host:port for dialing, preferring an IPv4 address and
// falling back to the host name.
func (s *ServerService) Address() (string, error) {
	host := ""
	for _, a := range s.Addresses {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			host = a
			break
		}
		if host == "" {
			host = a
		}
	}
	if host == "" {
		host = s.Host
	}
	if host == "" {
		return "", ErrNoAddress
	}
	return net.JoinHostPort(host, strconv.Itoa(int(s.Port))), nil
}

// AdvertiserConfig configures an Advertiser.
type AdvertiserConfig struct {
	// Interface restricts advertising to one network interface.
	// Empty means all interfaces.
	Interface string

	// TTL for the DNS records. Zero uses the zeroconf default.
	TTL time.Duration
}

// BrowserConfig configures a Browser.
type BrowserConfig struct {
	// Interface restricts browsing to one network interface.
	Interface string
}

// Finder looks up a single advertised server instance.
type Finder interface {
	Find(ctx context.Context, instance string) (*ServerService, error)
}
