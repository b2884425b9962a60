package smtpclient

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Errors below are terminal for a Session: once one of them is returned the
// connection must be closed and a new Session established.
var (
	// ErrTimeout is reported when an operation exceeds the session timeout.
	// Unread reply bytes may remain in flight afterwards, so the session
	// state relative to the server is unknown.
	ErrTimeout = errors.New("smtpclient: timeout waiting for the server")

	// ErrUnparseableReply is reported when the server's reply violates the
	// reply grammar or the connection closes mid-reply.
	ErrUnparseableReply = errors.New("smtpclient: unparseable reply")

	// ErrTooLongLine is reported when a reply line exceeds the maximum
	// length this client is willing to buffer.
	ErrTooLongLine = errors.New("smtpclient: too long a line in input stream")

	// ErrStartTLSUnsupported is reported when a TLS upgrade was requested
	// but the server did not announce the STARTTLS extension. The upgrade
	// handshake is never attempted in that case.
	ErrStartTLSUnsupported = errors.New("smtpclient: server does not announce STARTTLS")
)

// EnhancedCode is the enhanced status code defined in RFC 2034, e.g. 5.7.1.
// The zero value means the server did not send one.
type EnhancedCode [3]int

func (c EnhancedCode) String() string {
	return fmt.Sprintf("%d.%d.%d", c[0], c[1], c[2])
}

// A Reply is one structured server response: the three-digit status code,
// the optional enhanced status code, and the text of each reply line in
// order. Replies are immutable once returned.
type Reply struct {
	Code         int
	EnhancedCode EnhancedCode
	Lines        []string
}

// Positive reports a positive completion reply (2yz).
func (r *Reply) Positive() bool { return r.Code/100 == 2 }

// Intermediate reports a positive intermediate reply (3yz), e.g. the 354
// answer to DATA.
func (r *Reply) Intermediate() bool { return r.Code/100 == 3 }

// Temporary reports a transient negative completion reply (4yz).
func (r *Reply) Temporary() bool { return r.Code/100 == 4 }

// Permanent reports a permanent negative completion reply (5yz).
func (r *Reply) Permanent() bool { return r.Code/100 == 5 }

// Text returns the reply lines joined with newlines.
func (r *Reply) Text() string { return strings.Join(r.Lines, "\n") }

func (r *Reply) smtpError() *SMTPError {
	return &SMTPError{
		Code:         r.Code,
		EnhancedCode: r.EnhancedCode,
		Message:      r.Text(),
	}
}

// checkReplyCode verifies a reply against an expected code the way
// net/textproto does: a one-digit expectation matches the hundreds class, a
// two-digit one the tens prefix, a three-digit one exactly. Zero disables
// the check. A mismatch is returned as *SMTPError.
func checkReplyCode(rep *Reply, expect int) error {
	if expect == 0 {
		return nil
	}
	var ok bool
	switch {
	case expect < 10:
		ok = rep.Code/100 == expect
	case expect < 100:
		ok = rep.Code/10 == expect
	default:
		ok = rep.Code == expect
	}
	if !ok {
		return rep.smtpError()
	}
	return nil
}

// SMTPError is a protocol rejection: the server answered with a negative or
// otherwise unexpected status code.
type SMTPError struct {
	Code         int
	EnhancedCode EnhancedCode
	Message      string
}

func (err *SMTPError) Error() string {
	s := fmt.Sprintf("SMTP error %03d", err.Code)
	if err.Message != "" {
		s += ": " + err.Message
	}
	return s
}

// Temporary reports whether the rejection is transient and the operation may
// be worth retrying on a fresh session.
func (err *SMTPError) Temporary() bool {
	return err.Code/100 == 4
}

func parseEnhancedCode(s string) (EnhancedCode, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return EnhancedCode{}, fmt.Errorf("wrong amount of enhanced code parts")
	}

	code := EnhancedCode{}
	for i, part := range parts {
		num, err := strconv.Atoi(part)
		if err != nil {
			return code, err
		}
		code[i] = num
	}
	return code, nil
}
