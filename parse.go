package smtpclient

import (
	"fmt"
	"strings"
)

// maxReplyLineLength is a generous multiple of the 512-octet reply line
// limit from RFC 5321 (Section 4.5.3.1.5).
const maxReplyLineLength = 2000

// A ReplyParser assembles one structured Reply from raw transport bytes.
//
// The transport delivers arbitrary chunks with no alignment to reply
// boundaries, so the parser keeps its progress between Parse calls and
// reports how many bytes of each chunk it consumed. When Parse completes a
// reply, any unconsumed bytes of the chunk belong to the next reply and must
// be fed again before reading more from the transport.
//
// The zero value is ready to use. Reset discards an in-progress reply.
type ReplyParser struct {
	line  []byte
	code  int
	lines []string
}

// Reset prepares the parser for a new reply, discarding partial state.
func (p *ReplyParser) Reset() {
	p.line = p.line[:0]
	p.code = 0
	p.lines = nil
}

// Parse feeds a chunk of transport bytes to the parser. It returns the
// number of bytes consumed and, if those bytes completed a reply, the reply
// itself. A nil reply with consumed == len(data) means more data is needed.
// Grammar violations return an error wrapping ErrUnparseableReply, except a
// line past the length limit, which returns ErrTooLongLine; the session is
// unusable after either.
func (p *ReplyParser) Parse(data []byte) (consumed int, rep *Reply, err error) {
	for i, b := range data {
		if b != '\n' {
			if len(p.line) >= maxReplyLineLength {
				return i + 1, nil, ErrTooLongLine
			}
			p.line = append(p.line, b)
			continue
		}
		done, err := p.endLine()
		if err != nil {
			return i + 1, nil, err
		}
		if done {
			rep := &Reply{Code: p.code, Lines: p.lines}
			extractEnhancedCode(rep)
			p.Reset()
			return i + 1, rep, nil
		}
	}
	return len(data), nil, nil
}

// endLine folds the accumulated line into the reply under construction and
// reports whether it was the final line.
func (p *ReplyParser) endLine() (done bool, err error) {
	line := p.line
	if n := len(line); n > 0 && line[n-1] == '\r' {
		line = line[:n-1]
	}
	if len(line) < 3 {
		return false, fmt.Errorf("%w: short reply line %q", ErrUnparseableReply, line)
	}

	code := 0
	for _, d := range line[:3] {
		if d < '0' || d > '9' {
			return false, fmt.Errorf("%w: malformed status code %q", ErrUnparseableReply, line[:3])
		}
		code = code*10 + int(d-'0')
	}
	if p.code != 0 && code != p.code {
		return false, fmt.Errorf("%w: status code changed from %d to %d within one reply", ErrUnparseableReply, p.code, code)
	}

	sep := byte(' ')
	if len(line) > 3 {
		sep = line[3]
	}
	if sep != ' ' && sep != '-' {
		return false, fmt.Errorf("%w: bad separator %q after status code", ErrUnparseableReply, sep)
	}

	text := ""
	if len(line) > 4 {
		text = string(line[4:])
	}
	p.code = code
	p.lines = append(p.lines, text)
	p.line = p.line[:0]
	return sep == ' ', nil
}

// extractEnhancedCode pulls the leading RFC 2034 status code out of the
// reply text when present. Per the RFC the code is prepended to every line,
// so it is stripped from each of them.
func extractEnhancedCode(rep *Reply) {
	if class := rep.Code / 100; class != 2 && class != 4 && class != 5 {
		return
	}
	if len(rep.Lines) == 0 {
		return
	}
	parts := strings.SplitN(rep.Lines[0], " ", 2)
	if len(parts) != 2 {
		return
	}
	code, err := parseEnhancedCode(parts[0])
	if err != nil {
		return
	}
	rep.EnhancedCode = code
	for i, l := range rep.Lines {
		rep.Lines[i] = strings.TrimPrefix(l, parts[0]+" ")
	}
}
