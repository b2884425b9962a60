package smtpclient

import (
	"bytes"
	"strings"
	"testing"
)

func TestEncodeBody(t *testing.T) {
	vectors := []struct {
		in, out string
	}{
		{"", "\r\n.\r\n"},
		{"A: b\r\n.\r\n", "A: b\r\n..\r\n\r\n.\r\n"},
		{"A: b\r\n.", "A: b\r\n..\r\n.\r\n"},
		{"A: b\r\n..\r\n", "A: b\r\n...\r\n\r\n.\r\n"},
		{"A: ...b", "A: ...b\r\n.\r\n"},
		{".", "..\r\n.\r\n"},
		{"x", "x\r\n.\r\n"},
		{"x\r\n", "x\r\n\r\n.\r\n"},
		// a dot is only doubled at the start of a line
		{"a.b", "a.b\r\n.\r\n"},
		// bare LF, bare CR and CRLF are all line boundaries and all come out
		// as CRLF
		{"a\nb", "a\r\nb\r\n.\r\n"},
		{"a\rb", "a\r\nb\r\n.\r\n"},
		{"a\r\nb", "a\r\nb\r\n.\r\n"},
		{"a\r", "a\r\n\r\n.\r\n"},
		{"a\n", "a\r\n\r\n.\r\n"},
		{"\r\r", "\r\n\r\n\r\n.\r\n"},
		{"\n\n", "\r\n\r\n\r\n.\r\n"},
		// CR LF in reverse order is two boundaries, not one
		{"a\n\rb", "a\r\n\r\nb\r\n.\r\n"},
		// a dot after a normalized boundary starts a line and is doubled
		{"A: \n.\r\nMAIL FROM:<a@b>", "A: \r\n..\r\nMAIL FROM:<a@b>\r\n.\r\n"},
		{"A: \r.\nx", "A: \r\n..\r\nx\r\n.\r\n"},
	}
	for _, tc := range vectors {
		if got := EncodeBody([]byte(tc.in)); string(got) != tc.out {
			t.Errorf("EncodeBody(%q) = %q, want %q", tc.in, got, tc.out)
		}
	}
}

// No matter what the body contains, the encoded form must not contain a
// premature end-of-data line: the only "." line is the final terminator.
// This is what stops a message body from smuggling commands past the server.
func TestEncodeBodyNoSmuggledTerminator(t *testing.T) {
	bodies := []string{
		"\r\n.\r\n",
		"\n.\n",
		"\r.\r",
		"\n.\r\n",
		"\r\n.\n",
		"inocuous\r\n.\r\nMAIL FROM:<attacker@example.org>\r\nRCPT TO:<victim@example.org>",
		"inocuous\r.\nMAIL FROM:<attacker@example.org>\nRCPT TO:<victim@example.org>\nDATA\n.",
		"a\r.\nb\n.\rc",
		".",
		".\r.",
		"...\n.",
	}
	for _, body := range bodies {
		out := EncodeBody([]byte(body))
		if !bytes.HasSuffix(out, []byte(dataTerminator)) {
			t.Errorf("EncodeBody(%q) = %q: missing terminator", body, out)
			continue
		}
		for i, line := range strings.Split(string(out), "\r\n") {
			if line == "." && i != strings.Count(string(out), "\r\n")-1 {
				t.Errorf("EncodeBody(%q) = %q: premature end-of-data line", body, out)
				break
			}
		}
	}
}

// De-stuffing the wire form must recover the body exactly as it looked
// after newline normalization.
func TestEncodeBodyRoundTrip(t *testing.T) {
	bodies := []string{
		"",
		".",
		"A: b\r\n.\r\n",
		"A: b\r\n.",
		"Subject: hi\nbare\rboundaries\r\neverywhere",
		"..\n...\r.taps\r\n",
		"plain text with no boundaries at all",
		"trailing boundary\r\n",
	}
	for _, body := range bodies {
		out := EncodeBody([]byte(body))
		if !bytes.HasSuffix(out, []byte(dataTerminator)) {
			t.Errorf("EncodeBody(%q) = %q: missing terminator", body, out)
			continue
		}
		raw := string(out[:len(out)-len(dataTerminator)])
		lines := strings.Split(raw, "\r\n")
		for i, line := range lines {
			if strings.HasPrefix(line, ".") {
				lines[i] = line[1:]
			}
		}
		got := strings.Join(lines, "\r\n")

		want := strings.ReplaceAll(body, "\r\n", "\n")
		want = strings.ReplaceAll(want, "\r", "\n")
		want = strings.ReplaceAll(want, "\n", "\r\n")
		if got != want {
			t.Errorf("EncodeBody(%q) round-trip = %q, want %q", body, got, want)
		}
	}
}

// Streaming the body through the encoder in arbitrary chunks must produce
// exactly what the one-shot encoding produces.
func TestEncodeBodyAnySplit(t *testing.T) {
	body := []byte("Subject: split\r\n\r\n.\rleading\n..\r\ntrailing\r")
	want := EncodeBody(body)

	for split := 0; split <= len(body); split++ {
		var st stuffState
		var out []byte
		out = st.transform(out, body[:split])
		out = st.transform(out, body[split:])
		out = st.end(out)
		if !bytes.Equal(out, want) {
			t.Errorf("split at %d: got %q, want %q", split, out, want)
		}
	}
}

func TestEncodeBodyLongMessage(t *testing.T) {
	var body bytes.Buffer
	for i := 0; i < 1000; i++ {
		body.WriteString("This line is perfectly ordinary and needs no stuffing at all.\r\n")
	}
	out := EncodeBody(body.Bytes())
	if want := body.Len() + len(dataTerminator); len(out) != want {
		t.Errorf("ordinary body grew from %d to %d bytes", want, len(out))
	}
	if !bytes.HasSuffix(out, []byte(dataTerminator)) {
		t.Error("missing terminator")
	}
}
