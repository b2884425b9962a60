// Package config loads client settings from TOML files and turns them into
// ready-to-use builder and pool configurations.
package config

import (
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	smtpclient "github.com/mailgear/go-smtpclient"
	"github.com/mailgear/go-smtpclient/pool"
)

// ServerConfig locates the server and describes how sessions to it are
// established.
type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	Protocol  string `toml:"protocol"`   // "smtp" or "lmtp"
	Security  string `toml:"security"`   // "starttls", "tls" or "plain"
	LocalName string `toml:"local_name"` // name announced in EHLO or LHLO
	Username  string `toml:"username"`
	Password  string `toml:"password"`
	Timeout   string `toml:"timeout"` // per-operation timeout, e.g. "45s"

	// InsecureSkipVerify accepts any server certificate. For test rigs
	// only.
	InsecureSkipVerify bool `toml:"insecure_skip_verify"`
}

// PoolConfig sizes the session pool.
type PoolConfig struct {
	MaxSessions      int    `toml:"max_sessions"`
	HealthCheckAfter string `toml:"health_check_after"` // idle age before a NOOP probe, e.g. "1m"
}

// Config is the root of the TOML schema.
type Config struct {
	Server ServerConfig `toml:"server"`
	Pool   PoolConfig   `toml:"pool"`
}

// NewDefaultConfig returns a Config with the defaults applied: SMTP with
// STARTTLS on the submission port.
func NewDefaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Port:     587,
			Protocol: "smtp",
			Security: "starttls",
		},
	}
}

// Load reads path and decodes it over the defaults. Unknown keys are an
// error rather than a warning: a typoed security setting silently ignored is
// exactly what this schema must not allow.
func Load(path string) (Config, error) {
	cfg := NewDefaultConfig()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, key := range undecoded {
			keys[i] = key.String()
		}
		return Config{}, fmt.Errorf("config: unknown keys in %s: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// GetTimeout parses the per-operation timeout. Empty means the library
// default.
func (s *ServerConfig) GetTimeout() (time.Duration, error) {
	if s.Timeout == "" {
		return smtpclient.DefaultTimeout, nil
	}
	return time.ParseDuration(s.Timeout)
}

func (s *ServerConfig) protocol() (smtpclient.Protocol, error) {
	switch strings.ToLower(s.Protocol) {
	case "", "smtp":
		return smtpclient.ProtocolSMTP, nil
	case "lmtp":
		return smtpclient.ProtocolLMTP, nil
	}
	return 0, fmt.Errorf("config: unknown protocol %q", s.Protocol)
}

func (s *ServerConfig) security() (smtpclient.Security, error) {
	switch strings.ToLower(s.Security) {
	case "", "starttls":
		return smtpclient.SecurityStartTLS, nil
	case "tls":
		return smtpclient.SecurityImplicitTLS, nil
	case "plain":
		return smtpclient.SecurityPlain, nil
	}
	return 0, fmt.Errorf("config: unknown security %q", s.Security)
}

// GetHealthCheckAfter parses the idle age before pooled sessions are probed.
// Empty means the pool default.
func (p *PoolConfig) GetHealthCheckAfter() (time.Duration, error) {
	if p.HealthCheckAfter == "" {
		return 0, nil
	}
	return time.ParseDuration(p.HealthCheckAfter)
}

// Builder turns the server section into a Builder.
func (c *Config) Builder() (*smtpclient.Builder, error) {
	if c.Server.Host == "" {
		return nil, errors.New("config: server.host is required")
	}
	port := c.Server.Port
	if port == 0 {
		port = 587
	}
	b := smtpclient.NewBuilder(c.Server.Host, port)

	var err error
	if b.Protocol, err = c.Server.protocol(); err != nil {
		return nil, err
	}
	if b.Security, err = c.Server.security(); err != nil {
		return nil, err
	}
	if b.Timeout, err = c.Server.GetTimeout(); err != nil {
		return nil, err
	}
	if c.Server.LocalName != "" {
		b.LocalName = c.Server.LocalName
	}
	if c.Server.Username != "" {
		b.Credentials = &smtpclient.Credentials{
			Username: c.Server.Username,
			Password: c.Server.Password,
		}
	}
	if c.Server.InsecureSkipVerify {
		b.TLSConfig = &tls.Config{InsecureSkipVerify: true}
	}
	return b, nil
}

// NewPool builds a session pool from the whole file. The pool connects
// lazily, so this does not touch the network.
func (c *Config) NewPool() (*pool.Pool, error) {
	b, err := c.Builder()
	if err != nil {
		return nil, err
	}
	healthCheckAfter, err := c.Pool.GetHealthCheckAfter()
	if err != nil {
		return nil, err
	}
	return pool.New(pool.Config{
		Builder:          b,
		MaxSize:          int32(c.Pool.MaxSessions),
		HealthCheckAfter: healthCheckAfter,
	})
}
