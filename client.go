// Copyright 2010 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package smtpclient

import (
	"bufio"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
)

// readChunkSize bounds a single transport read while assembling replies. A
// chunk has no alignment with reply boundaries; the ReplyParser takes care
// of reassembly.
const readChunkSize = 1024

// A Session is a client connection to an SMTP or LMTP server.
//
// A Session supports exactly one operation at a time and is not safe for
// concurrent use. After ErrTimeout, ErrUnparseableReply, ErrTooLongLine or
// any transport error the session is unusable: close it and establish a new
// one.
type Session struct {
	// keep a reference to the connection so it can be used to create a TLS
	// connection later
	conn net.Conn
	w    *bufio.Writer

	// reply assembly state. Bytes read from the transport but not yet
	// consumed by the parser are kept across operations: a server is free to
	// coalesce several replies into one segment, and the tail of that
	// segment belongs to exchanges that have not started yet.
	parser  ReplyParser
	rbuf    [readChunkSize]byte
	pending []byte

	serverName string
	lmtp       bool
	caps       CapabilitySet
	localName  string   // the name to use in HELO/EHLO/LHLO
	didHello   bool     // whether we've said HELO/EHLO/LHLO
	helloError error    // the error from the hello
	rcpts      []string // recipients accepted in the current transaction

	// Timeout bounds every network-touching call as a whole: a command and
	// its reply, a pipelined batch and all its replies, or the submission of
	// a body including the server's verdict. A session that hits it must be
	// closed and not reused.
	Timeout time.Duration
}

// Dial returns a new Session connected to an SMTP server at addr.
// The addr must include a port, as in "mail.example.com:smtp".
func Dial(addr string) (*Session, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	return NewSession(conn, host)
}

// DialTLS returns a new Session connected to an SMTP server via TLS at addr.
// The addr must include a port, as in "mail.example.com:smtps".
func DialTLS(addr string, tlsConfig *tls.Config) (*Session, error) {
	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return nil, err
	}
	host, _, _ := net.SplitHostPort(addr)
	return NewSession(conn, host)
}

// NewSession returns a new Session using an existing connection and host as
// a server name to be used for TLS. It reads the server greeting, which must
// be a positive completion, before returning.
func NewSession(conn net.Conn, host string) (*Session, error) {
	s := newSession(conn, host)
	if err := s.greet(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// NewSessionLMTP returns a new LMTP Session (as defined in RFC 2033) using
// an existing connection and host as a server name to be used for TLS.
func NewSessionLMTP(conn net.Conn, host string) (*Session, error) {
	s := newSession(conn, host)
	s.lmtp = true
	if err := s.greet(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// newSession wraps a connection without touching the network, so callers
// can adjust the timeout before the greeting is read.
func newSession(conn net.Conn, host string) *Session {
	return &Session{
		conn:       conn,
		w:          bufio.NewWriter(conn),
		serverName: host,
		localName:  "localhost",
		Timeout:    DefaultTimeout,
	}
}

// greet consumes the server greeting. The server speaks first.
func (s *Session) greet() error {
	rep, err := s.ReadReply()
	if err != nil {
		return err
	}
	return checkReplyCode(rep, 2)
}

// Close closes the connection. The session must not be used afterwards.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.w = nil
	return err
}

func (s *Session) usable() error {
	if s.conn == nil {
		return errors.New("smtpclient: session is closed or was consumed by StartTLS")
	}
	return nil
}

// mapConnError classifies transport failures: an elapsed deadline becomes
// ErrTimeout, a close mid-reply becomes ErrUnparseableReply, anything else
// passes through untouched.
func mapConnError(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	if errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: connection closed by the server", ErrUnparseableReply)
	}
	return err
}

// ReadReply reads a single reply within the session timeout. It is used for
// the greeting and exported so extensions issued through Cmd or Pipeline can
// drive their own exchanges.
func (s *Session) ReadReply() (*Reply, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	s.conn.SetDeadline(time.Now().Add(s.Timeout))
	defer s.conn.SetDeadline(time.Time{})

	return s.readReply()
}

// ReadReplies reads exactly n consecutive replies within one session
// timeout, in arrival order.
func (s *Session) ReadReplies(n int) ([]*Reply, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	s.conn.SetDeadline(time.Now().Add(s.Timeout))
	defer s.conn.SetDeadline(time.Time{})

	return s.readReplies(n)
}

func (s *Session) readReply() (*Reply, error) {
	reps, err := s.readReplies(1)
	if err != nil {
		return nil, err
	}
	return reps[0], nil
}

// readReplies feeds pending transport bytes to the parser until n replies
// are assembled, reading more from the connection only when the pending
// bytes run out. Leftover bytes after the n-th reply stay pending for the
// next call; pipelined replies routinely share a segment.
func (s *Session) readReplies(n int) ([]*Reply, error) {
	replies := make([]*Reply, 0, n)
	for len(replies) < n {
		if len(s.pending) == 0 {
			// a read may return bytes together with an error; the bytes may
			// complete the reply, so they win and a persistent error will
			// surface on the next read
			k, err := s.conn.Read(s.rbuf[:])
			if k == 0 {
				if err != nil {
					return nil, mapConnError(err)
				}
				continue
			}
			s.pending = s.rbuf[:k]
			continue
		}
		used, rep, err := s.parser.Parse(s.pending)
		if err != nil {
			return nil, err
		}
		s.pending = s.pending[used:]
		if rep == nil {
			continue
		}
		replies = append(replies, rep)
	}
	return replies, nil
}

// writeLine queues one command line. The caller flushes, so pipelined
// batches go out in a single write.
func (s *Session) writeLine(line string) error {
	if _, err := s.w.WriteString(line); err != nil {
		return mapConnError(err)
	}
	if _, err := s.w.WriteString("\r\n"); err != nil {
		return mapConnError(err)
	}
	return nil
}

func (s *Session) flush() error {
	if err := s.w.Flush(); err != nil {
		return mapConnError(err)
	}
	return nil
}

// cmd sends a command and reads its reply, the whole exchange bounded by the
// session timeout. A reply code that does not match expectCode is returned
// as *SMTPError.
func (s *Session) cmd(expectCode int, format string, args ...interface{}) (*Reply, error) {
	if err := s.usable(); err != nil {
		return nil, err
	}
	s.conn.SetDeadline(time.Now().Add(s.Timeout))
	defer s.conn.SetDeadline(time.Time{})

	if err := s.writeLine(fmt.Sprintf(format, args...)); err != nil {
		return nil, err
	}
	if err := s.flush(); err != nil {
		return nil, err
	}
	rep, err := s.readReply()
	if err != nil {
		return nil, err
	}
	if err := checkReplyCode(rep, expectCode); err != nil {
		return nil, err
	}
	return rep, nil
}

// Cmd sends a single raw command and returns its reply. expectCode is
// matched as in checkReplyCode; zero accepts any code. The format result
// must be a single line: embedded CR or LF would be written to the wire
// verbatim, so validate caller-supplied arguments first.
func (s *Session) Cmd(expectCode int, format string, args ...interface{}) (*Reply, error) {
	return s.cmd(expectCode, format, args...)
}

// Pipeline writes every command line in cmds in order, flushes once, then
// reads exactly one reply per command, all within a single session timeout.
// Replies come back in send order and are not checked against any expected
// code; the caller classifies them. A failed or slow early reply stalls
// recognition of all later ones, which is the price of paying the round trip
// once.
func (s *Session) Pipeline(cmds []string) ([]*Reply, error) {
	if len(cmds) == 0 {
		return nil, nil
	}
	if err := s.usable(); err != nil {
		return nil, err
	}
	for _, c := range cmds {
		if err := validateLine(c); err != nil {
			return nil, err
		}
	}
	s.conn.SetDeadline(time.Now().Add(s.Timeout))
	defer s.conn.SetDeadline(time.Time{})

	for _, c := range cmds {
		if err := s.writeLine(c); err != nil {
			return nil, err
		}
	}
	if err := s.flush(); err != nil {
		return nil, err
	}
	return s.readReplies(len(cmds))
}

// hello runs a hello exchange if needed. EHLO (or LHLO) is tried first; HELO
// is a fallback for ancient SMTP servers that reject it.
func (s *Session) hello() error {
	if !s.didHello {
		s.didHello = true
		err := s.ehlo()
		if err != nil && !s.lmtp {
			var smtpErr *SMTPError
			if errors.As(err, &smtpErr) {
				err = s.helo()
			}
		}
		s.helloError = err
	}
	return s.helloError
}

// Hello sends a EHLO or LHLO to the server as the given host name.
// Calling this method is only necessary if the client needs control over the
// host name used. The session will introduce itself as "localhost"
// automatically otherwise. If Hello is called, it must be called before any
// of the other methods.
func (s *Session) Hello(localName string) error {
	if err := validateLine(localName); err != nil {
		return err
	}
	if s.didHello {
		return errors.New("smtpclient: Hello called after other methods")
	}
	s.localName = localName
	return s.hello()
}

// helo sends the HELO greeting to the server. It should be used only when
// the server does not support EHLO.
func (s *Session) helo() error {
	s.caps = nil
	_, err := s.cmd(250, "HELO %s", s.localName)
	return err
}

// ehlo sends the EHLO (or LHLO) greeting and rebuilds the capability set
// from scratch out of the multi-line reply.
func (s *Session) ehlo() error {
	cmd := "EHLO"
	if s.lmtp {
		cmd = "LHLO"
	}
	rep, err := s.cmd(250, "%s %s", cmd, s.localName)
	if err != nil {
		return err
	}
	s.caps = parseCapabilities(rep)
	return nil
}

// A CapabilitySet holds the extension tokens announced in an EHLO or LHLO
// reply, keyed by upper-cased name with the raw parameter string as value.
// The set is rebuilt on every announcement and is never carried across a TLS
// upgrade: what the server said before encryption cannot be trusted after.
type CapabilitySet map[string]string

// parseCapabilities reads the extension tokens out of a hello reply. The
// first line is the server's greeting text, the remaining ones carry one
// extension each.
func parseCapabilities(rep *Reply) CapabilitySet {
	caps := make(CapabilitySet)
	if len(rep.Lines) < 2 {
		return caps
	}
	for _, line := range rep.Lines[1:] {
		args := strings.SplitN(line, " ", 2)
		if len(args) > 1 {
			caps[strings.ToUpper(args[0])] = args[1]
		} else {
			caps[strings.ToUpper(args[0])] = ""
		}
	}
	return caps
}

// Has reports whether the named extension was announced. The name is
// case-insensitive.
func (cs CapabilitySet) Has(name string) bool {
	_, ok := cs[strings.ToUpper(name)]
	return ok
}

// Param returns the parameter string announced with the named extension.
func (cs CapabilitySet) Param(name string) (string, bool) {
	param, ok := cs[strings.ToUpper(name)]
	return param, ok
}

// AuthMechanisms lists the SASL mechanisms the server announced with AUTH,
// in announcement order.
func (cs CapabilitySet) AuthMechanisms() []string {
	param, ok := cs["AUTH"]
	if !ok {
		return nil
	}
	return strings.Fields(param)
}

// Capabilities returns the set announced by the most recent EHLO or LHLO,
// or nil before any announcement.
func (s *Session) Capabilities() CapabilitySet {
	return s.caps
}

// Extension reports whether an extension is supported by the server. The
// extension name is case-insensitive. If the extension is supported,
// Extension also returns a string that contains any parameters the server
// specifies for the extension.
func (s *Session) Extension(ext string) (bool, string) {
	if err := s.hello(); err != nil {
		return false, ""
	}
	param, ok := s.caps.Param(ext)
	return ok, param
}

// StartTLS upgrades the connection to TLS and consumes the receiver: on
// success the old session is unusable and the returned one replaces it,
// carrying no capabilities until the next hello. Capabilities observed
// before the upgrade must not be trusted after it, since an on-path attacker
// could have forged them; any reply bytes buffered before the upgrade are
// discarded for the same reason.
//
// The server must have announced STARTTLS; otherwise ErrStartTLSUnsupported
// is returned and no upgrade command is sent, so a stripped or forged
// announcement cannot push the dialog onto an unsupporting peer.
func (s *Session) StartTLS(config *tls.Config) (*Session, error) {
	if err := s.hello(); err != nil {
		return nil, err
	}
	if !s.caps.Has("STARTTLS") {
		return nil, ErrStartTLSUnsupported
	}
	if _, err := s.cmd(220, "STARTTLS"); err != nil {
		return nil, err
	}
	if config == nil {
		config = &tls.Config{}
	}
	if config.ServerName == "" {
		// Make a copy to avoid polluting argument
		config = config.Clone()
		config.ServerName = s.serverName
	}
	if testHookStartTLS != nil {
		testHookStartTLS(config)
	}
	tlsConn := tls.Client(s.conn, config)
	upgraded := &Session{
		conn:       tlsConn,
		w:          bufio.NewWriter(tlsConn),
		serverName: s.serverName,
		lmtp:       s.lmtp,
		localName:  s.localName,
		Timeout:    s.Timeout,
	}
	s.conn = nil
	s.w = nil
	s.caps = nil
	return upgraded, nil
}

// TLSConnectionState returns the session's TLS connection state. The return
// values are their zero values if the connection is not using TLS.
func (s *Session) TLSConnectionState() (state tls.ConnectionState, ok bool) {
	tc, ok := s.conn.(*tls.Conn)
	if !ok {
		return
	}
	return tc.ConnectionState(), true
}

// Verify checks the validity of an email address on the server. If Verify
// returns nil, the address is valid. A non-nil return does not necessarily
// indicate an invalid address. Many servers will not verify addresses for
// security reasons.
func (s *Session) Verify(addr string) error {
	if err := validateLine(addr); err != nil {
		return err
	}
	if err := s.hello(); err != nil {
		return err
	}
	_, err := s.cmd(250, "VRFY %s", addr)
	return err
}

// Auth authenticates the session using the provided mechanism. Only servers
// that announce the AUTH extension support this. The exchange runs over
// base64-encoded turns: 334 carries the next challenge, 235 reports success,
// anything else is a rejection. A failing mechanism aborts the exchange with
// the "*" line.
func (s *Session) Auth(a sasl.Client) error {
	if err := s.hello(); err != nil {
		return err
	}
	encoding := base64.StdEncoding
	mech, resp, err := a.Start()
	if err != nil {
		return err
	}
	resp64 := make([]byte, encoding.EncodedLen(len(resp)))
	encoding.Encode(resp64, resp)
	rep, err := s.cmd(0, "%s", strings.TrimSpace(fmt.Sprintf("AUTH %s %s", mech, resp64)))
	for err == nil {
		var msg []byte
		switch rep.Code {
		case 334:
			msg, err = encoding.DecodeString(rep.Text())
		case 235:
			// the last reply is not base64 because it is not a challenge
			msg = []byte(rep.Text())
		default:
			err = rep.smtpError()
		}
		if err == nil {
			if rep.Code == 334 {
				resp, err = a.Next(msg)
			} else {
				resp = nil
			}
		}
		if err != nil {
			// abort the AUTH
			s.cmd(501, "*")
			break
		}
		if resp == nil {
			break
		}
		resp64 = make([]byte, encoding.EncodedLen(len(resp)))
		encoding.Encode(resp64, resp)
		rep, err = s.cmd(0, "%s", resp64)
	}
	return err
}

// mailLine builds the MAIL command for from with the given options, checking
// each option against the announced capabilities.
func (s *Session) mailLine(from string, opts *MailOptions) (string, error) {
	line := "MAIL FROM:<" + from + ">"
	switch {
	case opts != nil && opts.Body != "":
		switch opts.Body {
		case Body7Bit:
		case Body8BitMIME:
			if !s.caps.Has("8BITMIME") {
				return "", errors.New("smtpclient: server does not support 8BITMIME")
			}
		case BodyBinaryMIME:
			if !s.caps.Has("BINARYMIME") {
				return "", errors.New("smtpclient: server does not support BINARYMIME")
			}
		default:
			return "", fmt.Errorf("smtpclient: unknown body type %q", opts.Body)
		}
		line += " BODY=" + string(opts.Body)
	case s.caps.Has("8BITMIME"):
		line += " BODY=8BITMIME"
	}
	if opts != nil && opts.Size != 0 && s.caps.Has("SIZE") {
		line += " SIZE=" + strconv.FormatInt(opts.Size, 10)
	}
	if opts != nil && opts.RequireTLS {
		if !s.caps.Has("REQUIRETLS") {
			return "", errors.New("smtpclient: server does not support REQUIRETLS")
		}
		line += " REQUIRETLS"
	}
	if opts != nil && opts.UTF8 {
		if !s.caps.Has("SMTPUTF8") {
			return "", errors.New("smtpclient: server does not support SMTPUTF8")
		}
		line += " SMTPUTF8"
	}
	if opts != nil && opts.Auth != nil {
		if s.caps.Has("AUTH") {
			line += " AUTH=" + encodeXtext(*opts.Auth)
		}
		// We can safely discard the parameter if the server does not
		// support AUTH.
	}
	return line, nil
}

// Mail issues a MAIL command to the server using the provided email address.
// If the server supports the 8BITMIME extension, Mail adds the BODY=8BITMIME
// parameter. This initiates a mail transaction and is followed by one or
// more Rcpt calls.
func (s *Session) Mail(from string, opts *MailOptions) error {
	if err := validateLine(from); err != nil {
		return err
	}
	if err := s.hello(); err != nil {
		return err
	}
	line, err := s.mailLine(from, opts)
	if err != nil {
		return err
	}
	if _, err := s.cmd(250, "%s", line); err != nil {
		return err
	}
	s.rcpts = s.rcpts[:0]
	return nil
}

// Rcpt issues a RCPT command to the server using the provided email address.
// A call to Rcpt must be preceded by a call to Mail and may be followed by a
// Data call or another Rcpt call.
func (s *Session) Rcpt(to string) error {
	if err := validateLine(to); err != nil {
		return err
	}
	if _, err := s.cmd(25, "RCPT TO:<%s>", to); err != nil {
		return err
	}
	s.rcpts = append(s.rcpts, to)
	return nil
}

// dataCloser streams a body through the transparency encoder into the
// session. Close sends the terminator and collects the server's verdict: one
// reply for SMTP, one per accepted recipient for LMTP.
type dataCloser struct {
	s        *Session
	st       stuffState
	buf      []byte
	statusCb func(rcpt string, status *SMTPError)
	closed   bool
}

func (d *dataCloser) Write(p []byte) (int, error) {
	if d.closed {
		return 0, errors.New("smtpclient: write on a closed message body")
	}
	if err := d.s.usable(); err != nil {
		return 0, err
	}
	d.s.conn.SetDeadline(time.Now().Add(d.s.Timeout))
	defer d.s.conn.SetDeadline(time.Time{})

	d.buf = d.st.transform(d.buf[:0], p)
	if _, err := d.s.w.Write(d.buf); err != nil {
		return 0, mapConnError(err)
	}
	return len(p), nil
}

func (d *dataCloser) Close() error {
	if d.closed {
		return nil
	}
	if err := d.s.usable(); err != nil {
		return err
	}
	d.closed = true

	d.s.conn.SetDeadline(time.Now().Add(d.s.Timeout))
	defer d.s.conn.SetDeadline(time.Time{})

	if _, err := d.s.w.Write(d.st.end(d.buf[:0])); err != nil {
		return mapConnError(err)
	}
	if err := d.s.flush(); err != nil {
		return err
	}

	if d.s.lmtp {
		// one verdict per accepted recipient, in RCPT order
		for _, rcpt := range d.s.rcpts {
			rep, err := d.s.readReply()
			if err != nil {
				return err
			}
			if d.statusCb != nil {
				if rep.Positive() {
					d.statusCb(rcpt, nil)
				} else {
					d.statusCb(rcpt, rep.smtpError())
				}
			}
		}
		return nil
	}
	rep, err := d.s.readReply()
	if err != nil {
		return err
	}
	if !rep.Positive() {
		return rep.smtpError()
	}
	return nil
}

// Data issues a DATA command to the server and returns a writer that can be
// used to write the mail headers and body. Everything written is
// transparency-encoded: line boundaries become CRLF, leading periods are
// doubled and the terminating line is appended on Close. The caller should
// close the writer before calling any more methods on s. A call to Data must
// be preceded by one or more calls to Rcpt.
func (s *Session) Data() (io.WriteCloser, error) {
	if _, err := s.cmd(354, "DATA"); err != nil {
		return nil, err
	}
	return &dataCloser{s: s}, nil
}

// LMTPData is the LMTP-specific version of the Data method. It accepts a
// callback that will be called for each status reply received from the
// server.
//
// The status callback receives a *SMTPError for each negative server reply
// and nil for each positive one. I/O errors are not reported through the
// callback and are returned by the Close method instead. The callback is
// called once per successful Rcpt call done before, in the same order.
func (s *Session) LMTPData(statusCb func(rcpt string, status *SMTPError)) (io.WriteCloser, error) {
	if !s.lmtp {
		return nil, errors.New("smtpclient: not a LMTP session")
	}
	if _, err := s.cmd(354, "DATA"); err != nil {
		return nil, err
	}
	return &dataCloser{s: s, statusCb: statusCb}, nil
}

// Send runs one complete mail transaction: MAIL, one RCPT per recipient,
// DATA, then the body of r through the transparency encoder. When the server
// announces PIPELINING, the envelope commands and DATA go out as a single
// batch and their replies are collected together, so the round trip is paid
// once; otherwise the same sequence runs command by command. Every recipient
// must be accepted. The final server verdict (per recipient for LMTP) must
// be positive.
func (s *Session) Send(from string, to []string, r io.Reader) error {
	if err := validateLine(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := validateLine(rcpt); err != nil {
			return err
		}
	}
	if len(to) == 0 {
		return errors.New("smtpclient: no recipients")
	}
	if err := s.hello(); err != nil {
		return err
	}

	if s.caps.Has("PIPELINING") {
		mail, err := s.mailLine(from, nil)
		if err != nil {
			return err
		}
		cmds := make([]string, 0, len(to)+2)
		cmds = append(cmds, mail)
		for _, rcpt := range to {
			cmds = append(cmds, "RCPT TO:<"+rcpt+">")
		}
		cmds = append(cmds, "DATA")
		reps, err := s.Pipeline(cmds)
		if err != nil {
			return err
		}
		// all replies are in hand; now hold the batch to the same codes the
		// sequential path would have required
		if err := checkReplyCode(reps[0], 250); err != nil {
			return err
		}
		s.rcpts = s.rcpts[:0]
		for i, rcpt := range to {
			if err := checkReplyCode(reps[1+i], 25); err != nil {
				return err
			}
			s.rcpts = append(s.rcpts, rcpt)
		}
		if err := checkReplyCode(reps[len(reps)-1], 354); err != nil {
			return err
		}
	} else {
		if err := s.Mail(from, nil); err != nil {
			return err
		}
		for _, rcpt := range to {
			if err := s.Rcpt(rcpt); err != nil {
				return err
			}
		}
		if _, err := s.cmd(354, "DATA"); err != nil {
			return err
		}
	}

	w := &dataCloser{s: s}
	var rcptErr error
	if s.lmtp {
		// the per-recipient verdicts must all be positive for Send to
		// succeed; keep the first rejection
		w.statusCb = func(rcpt string, status *SMTPError) {
			if status != nil && rcptErr == nil {
				rcptErr = status
			}
		}
	}
	if _, err := io.Copy(w, r); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return rcptErr
}

// Reset sends the RSET command to the server, aborting the current mail
// transaction.
func (s *Session) Reset() error {
	if err := s.hello(); err != nil {
		return err
	}
	if _, err := s.cmd(250, "RSET"); err != nil {
		return err
	}
	s.rcpts = nil
	return nil
}

// Noop sends the NOOP command to the server. It does nothing but check that
// the connection to the server is okay.
func (s *Session) Noop() error {
	if err := s.hello(); err != nil {
		return err
	}
	_, err := s.cmd(250, "NOOP")
	return err
}

// Quit sends the QUIT command and closes the connection to the server.
//
// If Quit fails the connection is not closed; Close should be used in this
// case.
func (s *Session) Quit() error {
	if err := s.hello(); err != nil {
		return err
	}
	if _, err := s.cmd(221, "QUIT"); err != nil {
		return err
	}
	return s.Close()
}

var testHookStartTLS func(*tls.Config) // nil, except for tests

// SendMail connects to the server at addr, switches to TLS if possible,
// authenticates with the optional mechanism a if possible, and then sends an
// email from address from, to addresses to, with message r. The addr must
// include a port, as in "mail.example.com:smtp".
//
// The addresses in the to parameter are the SMTP RCPT addresses.
//
// The r parameter should be an RFC 822-style email with headers first, a
// blank line, and then the message body. The r headers should usually
// include fields such as "From", "To", "Subject", and "Cc". Sending "Bcc"
// messages is accomplished by including an email address in the to parameter
// but not including it in the r headers. Line boundaries and leading periods
// in r need no special care; the transparency encoder takes care of them.
//
// SendMail is a low-level mechanism and provides no support for DKIM
// signing, MIME attachments (see the mime/multipart package or the
// go-message package), or other mail functionality.
func SendMail(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
	if err := validateLine(from); err != nil {
		return err
	}
	for _, recp := range to {
		if err := validateLine(recp); err != nil {
			return err
		}
	}
	s, err := Dial(addr)
	if err != nil {
		return err
	}
	defer func() { s.Close() }()
	if err := s.hello(); err != nil {
		return err
	}
	if s.caps.Has("STARTTLS") {
		if s, err = s.StartTLS(nil); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := s.Extension("AUTH"); !ok {
			return errors.New("smtpclient: server doesn't support AUTH")
		}
		if err := s.Auth(a); err != nil {
			return err
		}
	}
	if err := s.Send(from, to, r); err != nil {
		return err
	}
	return s.Quit()
}

// validateLine checks a command argument for CR or LF before it is embedded
// in a command line.
func validateLine(line string) error {
	if strings.ContainsAny(line, "\n\r") {
		return errors.New("smtpclient: a line must not contain CR or LF")
	}
	return nil
}

// encodeXtext encodes a string as xtext (RFC 3461), used for the AUTH=
// MAIL parameter.
func encodeXtext(raw string) string {
	var out strings.Builder
	out.Grow(len(raw))
	for _, ch := range raw {
		if ch >= '!' && ch <= '~' && ch != '+' && ch != '=' {
			out.WriteRune(ch)
			continue
		}
		fmt.Fprintf(&out, "+%02X", ch)
	}
	return out.String()
}
