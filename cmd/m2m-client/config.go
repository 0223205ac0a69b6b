package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/mash-protocol/m2m-client/pkg/interaction"
	"github.com/mash-protocol/m2m-client/pkg/scheduler"
	"github.com/mash-protocol/m2m-client/pkg/session"
	"github.com/mash-protocol/m2m-client/pkg/transport"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "M2M_"

// Config holds the client configuration. Values are layered: defaults,
// then the YAML file, then M2M_* environment variables, then flags.
type Config struct {
	Endpoint string `yaml:"endpoint" env:"ENDPOINT"`
	Domain   string `yaml:"domain" env:"DOMAIN"`
	Type     string `yaml:"type" env:"TYPE"`
	Lifetime uint32 `yaml:"lifetime" env:"LIFETIME"`

	Server      string `yaml:"server" env:"SERVER"`
	Security    string `yaml:"security" env:"SECURITY"`
	CertFile    string `yaml:"cert_file" env:"CERT_FILE"`
	KeyFile     string `yaml:"key_file" env:"KEY_FILE"`
	CAFile      string `yaml:"ca_file" env:"CA_FILE"`
	PSKIdentity string `yaml:"psk_identity" env:"PSK_IDENTITY"`
	PSK         string `yaml:"psk" env:"PSK"`
	LocalPort   int    `yaml:"local_port" env:"LOCAL_PORT"`

	OperationTimeout time.Duration `yaml:"operation_timeout" env:"OPERATION_TIMEOUT"`
	RequestTimeout   time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
	RenewInterval    time.Duration `yaml:"renew_interval" env:"RENEW_INTERVAL"`
	RenewLifetime    uint32        `yaml:"renew_lifetime" env:"RENEW_LIFETIME"`
	TickInterval     time.Duration `yaml:"tick_interval" env:"TICK_INTERVAL"`
	ReportThreshold  int           `yaml:"report_threshold" env:"REPORT_THRESHOLD"`
	RetryAttempts    int           `yaml:"retry_attempts" env:"RETRY_ATTEMPTS"`

	Manufacturer string `yaml:"manufacturer" env:"MANUFACTURER"`
	DeviceType   string `yaml:"device_type" env:"DEVICE_TYPE"`
	Model        string `yaml:"model" env:"MODEL"`
	Serial       string `yaml:"serial" env:"SERIAL"`

	StateFile   string `yaml:"state_file" env:"STATE_FILE"`
	ProtocolLog string `yaml:"protocol_log" env:"PROTOCOL_LOG"`
	StatusAddr  string `yaml:"status_addr" env:"STATUS_ADDR"`
	LogLevel    string `yaml:"log_level" env:"LOG_LEVEL"`
	Interactive bool   `yaml:"interactive" env:"INTERACTIVE"`
}

// defaultConfig mirrors the reference endpoint.
func defaultConfig() Config {
	return Config{
		Endpoint:         "m2m-endpoint",
		Domain:           "domain",
		Type:             "test",
		Lifetime:         scheduler.DefaultRenewLifetime,
		Security:         "none",
		OperationTimeout: 60 * time.Second,
		RequestTimeout:   interaction.DefaultRequestTimeout,
		RenewInterval:    scheduler.DefaultRenewInterval,
		RenewLifetime:    scheduler.DefaultRenewLifetime,
		TickInterval:     scheduler.DefaultTickInterval,
		ReportThreshold:  scheduler.DefaultReportThreshold,
		Manufacturer:     "Manufacturer_String",
		DeviceType:       "Type_String",
		Model:            "ModelNumber_String",
		Serial:           "SerialNumber_String",
		LogLevel:         "info",
	}
}

// loadConfig layers the YAML file at path (if any) and the environment
// over the defaults, then applies the flag values in flags for which
// changed reports true.
func loadConfig(path string, flags *Config, changed func(name string) bool) (Config, error) {
	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}

	if flags != nil && changed != nil {
		applyFlags(&cfg, flags, changed)
	}
	return cfg, nil
}

func applyFlags(cfg, flags *Config, changed func(string) bool) {
	set := func(name string, apply func()) {
		if changed(name) {
			apply()
		}
	}
	set("endpoint", func() { cfg.Endpoint = flags.Endpoint })
	set("domain", func() { cfg.Domain = flags.Domain })
	set("type", func() { cfg.Type = flags.Type })
	set("lifetime", func() { cfg.Lifetime = flags.Lifetime })
	set("server", func() { cfg.Server = flags.Server })
	set("security", func() { cfg.Security = flags.Security })
	set("cert", func() { cfg.CertFile = flags.CertFile })
	set("key", func() { cfg.KeyFile = flags.KeyFile })
	set("ca", func() { cfg.CAFile = flags.CAFile })
	set("local-port", func() { cfg.LocalPort = flags.LocalPort })
	set("operation-timeout", func() { cfg.OperationTimeout = flags.OperationTimeout })
	set("renew-interval", func() { cfg.RenewInterval = flags.RenewInterval })
	set("retry", func() { cfg.RetryAttempts = flags.RetryAttempts })
	set("state", func() { cfg.StateFile = flags.StateFile })
	set("protocol-log", func() { cfg.ProtocolLog = flags.ProtocolLog })
	set("status-addr", func() { cfg.StatusAddr = flags.StatusAddr })
	set("log-level", func() { cfg.LogLevel = flags.LogLevel })
	set("interactive", func() { cfg.Interactive = flags.Interactive })
}

func validateConfig(cfg *Config) error {
	var errs []error
	if cfg.Endpoint == "" {
		errs = append(errs, errors.New("endpoint name is required"))
	}
	if cfg.Server == "" {
		errs = append(errs, errors.New("server URI is required"))
	} else if _, err := interaction.ParseServerURI(cfg.Server); err != nil {
		errs = append(errs, err)
	}
	mode, err := parseSecurityMode(cfg.Security)
	if err != nil {
		errs = append(errs, err)
	}
	if mode == session.SecurityCertificate && (cfg.CertFile == "") != (cfg.KeyFile == "") {
		errs = append(errs, errors.New("cert and key must be given together"))
	}
	if cfg.LocalPort != 0 && (cfg.LocalPort < transport.MinLocalPort || cfg.LocalPort > transport.MaxLocalPort) {
		errs = append(errs, fmt.Errorf("local port must be %d-%d, got %d",
			transport.MinLocalPort, transport.MaxLocalPort, cfg.LocalPort))
	}
	if cfg.OperationTimeout < 0 || cfg.RequestTimeout < 0 {
		errs = append(errs, errors.New("timeouts must not be negative"))
	}
	if cfg.RetryAttempts < 0 {
		errs = append(errs, fmt.Errorf("retry attempts must not be negative, got %d", cfg.RetryAttempts))
	}
	if _, err := parseLogLevel(cfg.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func applyDefaults(cfg *Config) {
	if cfg.Lifetime == 0 {
		cfg.Lifetime = scheduler.DefaultRenewLifetime
	}
	if cfg.RenewLifetime == 0 {
		cfg.RenewLifetime = cfg.Lifetime
	}
}

func parseSecurityMode(s string) (session.SecurityMode, error) {
	switch strings.ToLower(s) {
	case "", "none", "nosec":
		return session.SecurityNone, nil
	case "psk":
		return session.SecurityPSK, nil
	case "cert", "certificate":
		return session.SecurityCertificate, nil
	default:
		return session.SecurityNone, fmt.Errorf("unknown security mode: %s", s)
	}
}

// identity returns the endpoint identity described by cfg.
func (c *Config) identity() session.Identity {
	return session.Identity{
		Name:     c.Endpoint,
		Domain:   c.Domain,
		Type:     c.Type,
		Lifetime: c.Lifetime,
		Binding:  session.BindingTCP,
		Device: session.DeviceInfo{
			Manufacturer: c.Manufacturer,
			DeviceType:   c.DeviceType,
			ModelNumber:  c.Model,
			SerialNumber: c.Serial,
		},
	}
}

// security returns the security context described by cfg.
func (c *Config) security() session.Security {
	mode, _ := parseSecurityMode(c.Security)
	return session.Security{
		ServerURI:   c.Server,
		Mode:        mode,
		PSKIdentity: c.PSKIdentity,
		PSK:         []byte(c.PSK),
		CertFile:    c.CertFile,
		KeyFile:     c.KeyFile,
		CAFile:      c.CAFile,
	}
}
