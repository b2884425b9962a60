package smtpclient

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func TestReplyParser(t *testing.T) {
	valid := []struct {
		raw   string
		code  int
		ec    EnhancedCode
		lines []string
	}{
		{"220 mx.example.org ESMTP ready\r\n", 220, EnhancedCode{}, []string{"mx.example.org ESMTP ready"}},
		{"250 Ok\r\n", 250, EnhancedCode{}, []string{"Ok"}},
		{"250 2.0.0 Ok\r\n", 250, EnhancedCode{2, 0, 0}, []string{"Ok"}},
		{"250-mx.example.org\r\n250-PIPELINING\r\n250 STARTTLS\r\n", 250, EnhancedCode{}, []string{"mx.example.org", "PIPELINING", "STARTTLS"}},
		{"550 5.1.1 No such user\r\n", 550, EnhancedCode{5, 1, 1}, []string{"No such user"}},
		{"550-5.7.1 Rejected\r\n550 5.7.1 Contact postmaster\r\n", 550, EnhancedCode{5, 7, 1}, []string{"Rejected", "Contact postmaster"}},
		// the enhanced code is only defined for 2xx, 4xx and 5xx replies
		{"354 3.0.0 go ahead\r\n", 354, EnhancedCode{}, []string{"3.0.0 go ahead"}},
		// no text after the code at all
		{"250\r\n", 250, EnhancedCode{}, []string{""}},
		{"250-\r\n250 done\r\n", 250, EnhancedCode{}, []string{"", "done"}},
		// a lone LF terminates a line just as well
		{"250 Ok\n", 250, EnhancedCode{}, []string{"Ok"}},
	}
	for _, tc := range valid {
		var p ReplyParser
		consumed, rep, err := p.Parse([]byte(tc.raw))
		if err != nil {
			t.Errorf("Parse(%q) = %v", tc.raw, err)
			continue
		}
		if rep == nil {
			t.Errorf("Parse(%q): reply not completed", tc.raw)
			continue
		}
		if consumed != len(tc.raw) {
			t.Errorf("Parse(%q): consumed %d, want %d", tc.raw, consumed, len(tc.raw))
		}
		if rep.Code != tc.code {
			t.Errorf("Parse(%q): code %d, want %d", tc.raw, rep.Code, tc.code)
		}
		if rep.EnhancedCode != tc.ec {
			t.Errorf("Parse(%q): enhanced code %v, want %v", tc.raw, rep.EnhancedCode, tc.ec)
		}
		if !reflect.DeepEqual(rep.Lines, tc.lines) {
			t.Errorf("Parse(%q): lines %q, want %q", tc.raw, rep.Lines, tc.lines)
		}
	}

	invalid := []string{
		"\r\n",
		"25\r\n",
		"two hundred\r\n",
		"2 5 0 Ok\r\n",
		"2\r50 Ok\r\n",
		"250&Ok\r\n",
		"250-first\r\n251 second\r\n",
	}
	for _, tc := range invalid {
		var p ReplyParser
		_, rep, err := p.Parse([]byte(tc))
		if err == nil {
			t.Errorf("Parse(%q) = %+v, want error", tc, rep)
			continue
		}
		if !errors.Is(err, ErrUnparseableReply) {
			t.Errorf("Parse(%q) = %v, want ErrUnparseableReply", tc, err)
		}
	}
}

// A reply must parse to the same result regardless of where the transport
// happens to split it into chunks.
func TestReplyParserAnySplit(t *testing.T) {
	raw := "250-mx.example.org greets you\r\n250-SIZE 35651584\r\n250-AUTH PLAIN LOGIN\r\n250 STARTTLS\r\n"

	var whole ReplyParser
	consumed, want, err := whole.Parse([]byte(raw))
	if err != nil || want == nil || consumed != len(raw) {
		t.Fatalf("whole-buffer parse failed: consumed=%d rep=%+v err=%v", consumed, want, err)
	}

	for split := 1; split < len(raw); split++ {
		var p ReplyParser
		var got *Reply
		for _, part := range []string{raw[:split], raw[split:]} {
			data := []byte(part)
			for len(data) > 0 && got == nil {
				used, rep, err := p.Parse(data)
				if err != nil {
					t.Fatalf("split at %d: %v", split, err)
				}
				data = data[used:]
				got = rep
			}
		}
		if got == nil {
			t.Fatalf("split at %d: reply not completed", split)
		}
		if got.Code != want.Code || !reflect.DeepEqual(got.Lines, want.Lines) {
			t.Errorf("split at %d: got %+v, want %+v", split, got, want)
		}
	}
}

// consumed must stop exactly after the final LF of a completed reply so the
// rest of the chunk can be fed to the next reply.
func TestReplyParserLeftover(t *testing.T) {
	first := "250 Sender ok\r\n"
	second := "550 5.1.1 No such user\r\n"
	partial := "354 go"
	data := []byte(first + second + partial)

	var p ReplyParser
	used, rep, err := p.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if rep == nil || rep.Code != 250 {
		t.Fatalf("first reply = %+v", rep)
	}
	if used != len(first) {
		t.Fatalf("consumed %d, want %d", used, len(first))
	}

	data = data[used:]
	p.Reset()
	used, rep, err = p.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if rep == nil || rep.Code != 550 {
		t.Fatalf("second reply = %+v", rep)
	}
	if used != len(second) {
		t.Fatalf("consumed %d, want %d", used, len(second))
	}

	data = data[used:]
	p.Reset()
	used, rep, err = p.Parse(data)
	if err != nil {
		t.Fatal(err)
	}
	if rep != nil {
		t.Fatalf("partial line completed a reply: %+v", rep)
	}
	if used != len(partial) {
		t.Fatalf("consumed %d, want %d", used, len(partial))
	}
}

func TestReplyParserTooLongLine(t *testing.T) {
	raw := "250 " + strings.Repeat("x", maxReplyLineLength) + "\r\n"

	var p ReplyParser
	_, _, err := p.Parse([]byte(raw))
	if err != ErrTooLongLine {
		t.Fatalf("Parse = %v, want ErrTooLongLine", err)
	}
}

// The guard must fire while the line is still accumulating, not only once a
// terminator shows up: a server streaming garbage forever would otherwise
// grow the buffer without bound.
func TestReplyParserTooLongLineNoTerminator(t *testing.T) {
	var p ReplyParser
	chunk := []byte(strings.Repeat("y", 512))
	var err error
	for i := 0; i < 8 && err == nil; i++ {
		_, _, err = p.Parse(chunk)
	}
	if err != ErrTooLongLine {
		t.Fatalf("Parse = %v, want ErrTooLongLine", err)
	}
}

func TestReplyParserReset(t *testing.T) {
	var p ReplyParser
	if _, rep, err := p.Parse([]byte("250-part")); err != nil || rep != nil {
		t.Fatalf("partial parse: rep=%+v err=%v", rep, err)
	}
	p.Reset()
	_, rep, err := p.Parse([]byte("220 fresh\r\n"))
	if err != nil {
		t.Fatal(err)
	}
	if rep == nil || rep.Code != 220 || rep.Text() != "fresh" {
		t.Fatalf("reply after reset = %+v", rep)
	}
}
