package smtpclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
)

// DefaultTimeout is the Session.Timeout for sessions that do not set their
// own. It is deliberately long: busy servers legitimately take minutes to
// answer DATA. Callers wanting snappier failure lower Timeout themselves.
const DefaultTimeout = 1 * time.Hour

// Credentials hold a username and password for authentication. A SASL
// mechanism is picked from the ones the server announces, preferring PLAIN
// and falling back to LOGIN for legacy servers.
type Credentials struct {
	Username string
	Password string
}

func (c *Credentials) client(caps CapabilitySet) (sasl.Client, error) {
	mechs := caps.AuthMechanisms()
	for _, m := range mechs {
		if m == sasl.Plain {
			return sasl.NewPlainClient("", c.Username, c.Password), nil
		}
	}
	for _, m := range mechs {
		if m == sasl.Login {
			return sasl.NewLoginClient(c.Username, c.Password), nil
		}
	}
	return nil, fmt.Errorf("smtpclient: no supported AUTH mechanism in %q", mechs)
}

// A Builder describes how to reach a server and establish a ready-to-submit
// session. The zero value is not useful; NewBuilder seeds the defaults.
// Builders are plain data and may be reused for any number of Connect
// calls.
type Builder struct {
	// Host and Port locate the server.
	Host string
	Port int

	// Protocol selects SMTP or LMTP semantics for the whole session.
	Protocol Protocol

	// Security selects how TLS comes up: negotiated via STARTTLS (the
	// default), implicit from the first byte, or not at all.
	Security Security

	// TLSConfig is cloned for the handshake. Nil means a config pinned to
	// Host.
	TLSConfig *tls.Config

	// LocalName is the name announced in EHLO or LHLO. Empty means
	// "localhost".
	LocalName string

	// Credentials, when set, trigger authentication after the hello phase.
	Credentials *Credentials

	// Auth overrides the mechanism selection derived from Credentials.
	Auth sasl.Client

	// DisableHello skips the capability announcement after the connection
	// is up. Authentication is impossible without it.
	DisableHello bool

	// Timeout bounds the dial and afterwards every operation of the
	// established session. Zero means DefaultTimeout.
	Timeout time.Duration
}

// NewBuilder returns a Builder for host and port with STARTTLS security,
// SMTP protocol and the default local name and timeout.
func NewBuilder(host string, port int) *Builder {
	return &Builder{
		Host:      host,
		Port:      port,
		Security:  SecurityStartTLS,
		Protocol:  ProtocolSMTP,
		LocalName: "localhost",
		Timeout:   DefaultTimeout,
	}
}

// Connect dials the server and walks the whole establishment sequence:
// greeting, TLS upgrade when configured, capability announcement,
// authentication when configured. It returns a ready session, or closes the
// connection and returns only the error. There are no partial sessions: any
// failed step fails the whole establishment.
func (b *Builder) Connect() (*Session, error) {
	addr := net.JoinHostPort(b.Host, strconv.Itoa(b.Port))
	timeout := b.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	dialer := &net.Dialer{Timeout: timeout}

	var (
		conn net.Conn
		err  error
	)
	if b.Security == SecurityImplicitTLS {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, b.tlsConfig())
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	s, err := b.establish(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// establish runs the post-dial sequence on conn. The caller closes conn
// when an error comes back.
func (b *Builder) establish(conn net.Conn) (*Session, error) {
	s := newSession(conn, b.Host)
	s.lmtp = b.Protocol == ProtocolLMTP
	if b.Timeout > 0 {
		s.Timeout = b.Timeout
	}
	if b.LocalName != "" {
		if err := validateLine(b.LocalName); err != nil {
			return nil, err
		}
		s.localName = b.LocalName
	}

	if err := s.greet(); err != nil {
		return nil, err
	}

	if b.Security == SecurityStartTLS {
		upgraded, err := s.StartTLS(b.tlsConfig())
		if err != nil {
			return nil, err
		}
		s = upgraded
	}

	if b.DisableHello {
		if b.Credentials != nil || b.Auth != nil {
			return nil, errors.New("smtpclient: authentication requires the hello phase")
		}
		return s, nil
	}
	if err := s.hello(); err != nil {
		return nil, err
	}

	if b.Credentials != nil || b.Auth != nil {
		a := b.Auth
		if a == nil {
			var err error
			a, err = b.Credentials.client(s.caps)
			if err != nil {
				return nil, err
			}
		}
		if err := s.Auth(a); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (b *Builder) tlsConfig() *tls.Config {
	if b.TLSConfig == nil {
		return &tls.Config{ServerName: b.Host}
	}
	cfg := b.TLSConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = b.Host
	}
	return cfg
}
