package session

import "context"

// Registrar performs the outbound registration operations. Implementations
// report the outcome asynchronously through the session's inbound methods;
// a returned error means the request could not be sent at all.
type Registrar interface {
	Register(ctx context.Context, reg Registration) error
	Renew(ctx context.Context, lifetime uint32) error
	Unregister(ctx context.Context) error
}

// Registration carries everything a register request needs.
type Registration struct {
	Identity Identity
	Security Security
	Objects  ObjectSet
}

// BindingMode is the transport binding announced at registration.
type BindingMode string

const (
	BindingUDP BindingMode = "U"
	BindingTCP BindingMode = "T"
)

// DeviceInfo holds the device object values.
type DeviceInfo struct {
	Manufacturer string
	DeviceType   string
	ModelNumber  string
	SerialNumber string
}

// Identity is the endpoint identity. It is fixed for the life of the
// process.
type Identity struct {
	Name     string
	Domain   string
	Type     string
	Lifetime uint32
	Binding  BindingMode
	Device   DeviceInfo
}

// ObjectSet lists the object instances announced at registration,
// for example "3/0" or "Test/0".
type ObjectSet []string

// SecurityMode selects how the transport authenticates.
type SecurityMode uint8

const (
	SecurityNone SecurityMode = iota
	SecurityPSK
	SecurityCertificate
)

// String returns the mode name.
func (m SecurityMode) String() string {
	switch m {
	case SecurityNone:
		return "NoSec"
	case SecurityPSK:
		return "PSK"
	case SecurityCertificate:
		return "Certificate"
	default:
		return "Unknown"
	}
}

// Security is the security context for the management server. The session
// passes it through without interpreting it.
type Security struct {
	ServerURI string
	Mode      SecurityMode

	PSKIdentity string
	PSK         []byte

	CertFile string
	KeyFile  string
	CAFile   string
}
