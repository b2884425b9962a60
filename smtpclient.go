// Package smtpclient implements the client side of SMTP (RFC 5321) and LMTP
// (RFC 2033): session establishment with optional STARTTLS upgrade and SASL
// authentication, capability discovery, command pipelining, and message
// submission with transparent dot-stuffing.
//
// It speaks the following extensions when the server announces them:
//
//   - 8BITMIME (RFC 1652)
//   - AUTH (RFC 4954)
//   - STARTTLS (RFC 3207)
//   - ENHANCEDSTATUSCODES (RFC 2034)
//   - PIPELINING (RFC 2920)
//   - SIZE (RFC 1870)
//   - SMTPUTF8 (RFC 6531)
//   - REQUIRETLS (RFC 8689)
//
// A Session is strictly request/response: exactly one operation may be in
// flight at a time, and the package does no internal locking. Applications
// that need concurrency open several Sessions; the pool subpackage manages a
// set of them.
package smtpclient

// Security selects how the connection to the server is encrypted.
type Security int

const (
	// SecurityStartTLS connects in the clear and upgrades with STARTTLS
	// before the hello phase. The upgrade is mandatory: a server that does
	// not announce STARTTLS is rejected rather than used unencrypted.
	SecurityStartTLS Security = iota
	// SecurityImplicitTLS dials a TLS connection directly.
	SecurityImplicitTLS
	// SecurityPlain never encrypts the connection.
	SecurityPlain
)

func (s Security) String() string {
	switch s {
	case SecurityStartTLS:
		return "starttls"
	case SecurityImplicitTLS:
		return "tls"
	case SecurityPlain:
		return "plain"
	}
	return "unknown"
}

// Protocol selects the protocol variant spoken on the wire.
type Protocol int

const (
	ProtocolSMTP Protocol = iota
	ProtocolLMTP
)

func (p Protocol) String() string {
	if p == ProtocolLMTP {
		return "lmtp"
	}
	return "smtp"
}

type BodyType string

const (
	Body7Bit       BodyType = "7BIT"
	Body8BitMIME   BodyType = "8BITMIME"
	BodyBinaryMIME BodyType = "BINARYMIME"
)

// MailOptions contains parameters for the MAIL command. Options whose
// extension the server did not announce are either rejected (RequireTLS,
// UTF8, an explicit Body) or silently dropped (Size, Auth), matching what
// the corresponding RFCs allow.
type MailOptions struct {
	// Value of the BODY= argument. Leaving it empty picks 8BITMIME
	// automatically when the server supports it.
	Body BodyType

	// Size of the body, forwarded with SIZE= when the server announces the
	// extension. Zero means unknown.
	Size int64

	// TLS is required for the message transmission.
	//
	// The message should be rejected if it can't be transmitted with TLS.
	RequireTLS bool

	// The message envelope or message header contains UTF-8-encoded strings.
	UTF8 bool

	// The authorization identity asserted by the message sender, forwarded
	// as AUTH= in xtext encoding.
	//
	// nil value indicates missing AUTH, non-nil empty string indicates
	// AUTH=<>.
	Auth *string
}
