package smtpclient

// The message body travels inside the DATA dialog, where a line consisting
// of a single period terminates it. To keep body content from ever being
// read as that terminator or as a smuggled command, the encoder rewrites the
// body before it reaches the wire:
//
//   - every line boundary, whether CRLF, bare CR or bare LF, becomes CRLF,
//     so the peer's line framing cannot disagree with ours;
//   - every line starting with one or more periods gains one extra period;
//   - the CRLF "." CRLF terminator is appended unconditionally, with a
//     synthetic boundary when the body did not end in one.
//
// dataTerminator ends every encoded body.
const dataTerminator = "\r\n.\r\n"

// stuffState carries the encoder state machine across chunk boundaries so
// the transform can run over a stream as well as over a full body.
type stuffState struct {
	midLine bool // wrote at least one byte of the current line
	pendCR  bool // saw a CR, boundary kind not yet known
}

// transform appends the encoded form of p to dst, excluding the terminator.
func (st *stuffState) transform(dst []byte, p []byte) []byte {
	for _, b := range p {
		if st.pendCR {
			st.pendCR = false
			// CRLF and a bare CR both end the line
			dst = append(dst, '\r', '\n')
			st.midLine = false
			if b == '\n' {
				continue
			}
		}
		switch b {
		case '\r':
			st.pendCR = true
		case '\n':
			dst = append(dst, '\r', '\n')
			st.midLine = false
		case '.':
			if !st.midLine {
				dst = append(dst, '.')
			}
			dst = append(dst, '.')
			st.midLine = true
		default:
			dst = append(dst, b)
			st.midLine = true
		}
	}
	return dst
}

// end appends whatever a trailing CR still owes plus the terminator.
func (st *stuffState) end(dst []byte) []byte {
	if st.pendCR {
		st.pendCR = false
		dst = append(dst, '\r', '\n')
		st.midLine = false
	}
	return append(dst, dataTerminator...)
}

// EncodeBody returns the transparency-encoded form of an arbitrary body: all
// line boundaries normalized to CRLF, leading periods doubled, terminator
// appended. It is total over any byte sequence; an empty body encodes to the
// terminator alone.
func EncodeBody(body []byte) []byte {
	var st stuffState
	out := make([]byte, 0, len(body)+len(body)/64+len(dataTerminator))
	out = st.transform(out, body)
	return st.end(out)
}
