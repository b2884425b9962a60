// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package smtpclient_test

import (
	"fmt"
	"io"
	"log"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	smtpclient "github.com/mailgear/go-smtpclient"
)

func ExampleDial() {
	// Connect to the remote SMTP server.
	s, err := smtpclient.Dial("mail.example.com:25")
	if err != nil {
		log.Fatal(err)
	}

	// Set the sender and recipient first
	if err := s.Mail("sender@example.org", nil); err != nil {
		log.Fatal(err)
	}
	if err := s.Rcpt("recipient@example.net"); err != nil {
		log.Fatal(err)
	}

	// Send the email body. Line endings and leading periods are taken care
	// of on the way out.
	wc, err := s.Data()
	if err != nil {
		log.Fatal(err)
	}
	_, err = fmt.Fprintf(wc, "This is the email body")
	if err != nil {
		log.Fatal(err)
	}
	err = wc.Close()
	if err != nil {
		log.Fatal(err)
	}

	// Send the QUIT command and close the connection.
	err = s.Quit()
	if err != nil {
		log.Fatal(err)
	}
}

func ExampleSendMail() {
	// Set up authentication information.
	auth := sasl.NewPlainClient("", "user@example.com", "password")

	// Connect to the server, authenticate, set the sender and recipient,
	// and send the email all in one step.
	to := []string{"recipient@example.net"}
	msg := strings.NewReader("To: recipient@example.net\r\n" +
		"Subject: discount Gophers!\r\n" +
		"\r\n" +
		"This is the email body.\r\n")
	err := smtpclient.SendMail("mail.example.com:25", auth, "sender@example.org", to, msg)
	if err != nil {
		log.Fatal(err)
	}
}

func ExampleBuilder_Connect() {
	// Describe the server once; Connect dials, upgrades to TLS and
	// authenticates in one step.
	b := smtpclient.NewBuilder("mail.example.com", 587)
	b.Credentials = &smtpclient.Credentials{
		Username: "user@example.com",
		Password: "password",
	}
	b.Timeout = 30 * time.Second

	s, err := b.Connect()
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	msg := strings.NewReader("To: recipient@example.net\r\n" +
		"Subject: discount Gophers!\r\n" +
		"\r\n" +
		"This is the email body.\r\n")
	err = s.Send("sender@example.org", []string{"recipient@example.net"}, msg)
	if err != nil {
		log.Fatal(err)
	}
	if err := s.Quit(); err != nil {
		log.Fatal(err)
	}
}

func ExampleSession_LMTPData() {
	// LMTP servers usually listen on a Unix socket.
	conn, err := net.Dial("unix", "/var/run/lmtp.sock")
	if err != nil {
		log.Fatal(err)
	}
	s, err := smtpclient.NewSessionLMTP(conn, "")
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()

	if err := s.Mail("sender@example.org", nil); err != nil {
		log.Fatal(err)
	}
	for _, rcpt := range []string{"alice@example.net", "bob@example.net"} {
		if err := s.Rcpt(rcpt); err != nil {
			log.Fatal(err)
		}
	}

	// LMTP delivers a separate verdict for every recipient.
	w, err := s.LMTPData(func(rcpt string, status *smtpclient.SMTPError) {
		if status != nil {
			log.Printf("delivery to %s failed: %v", rcpt, status)
		}
	})
	if err != nil {
		log.Fatal(err)
	}
	if _, err := io.Copy(w, strings.NewReader("This is the email body")); err != nil {
		log.Fatal(err)
	}
	if err := w.Close(); err != nil {
		log.Fatal(err)
	}
	if err := s.Quit(); err != nil {
		log.Fatal(err)
	}
}

func ExampleSession_Pipeline() {
	s, err := smtpclient.Dial("mail.example.com:25")
	if err != nil {
		log.Fatal(err)
	}
	defer s.Close()
	if err := s.Hello("client.example.org"); err != nil {
		log.Fatal(err)
	}

	// Send the whole envelope in one round trip and sort the verdicts out
	// afterwards.
	replies, err := s.Pipeline([]string{
		"MAIL FROM:<sender@example.org>",
		"RCPT TO:<recipient@example.net>",
		"RCPT TO:<other@example.net>",
	})
	if err != nil {
		log.Fatal(err)
	}
	for i, rep := range replies {
		if !rep.Positive() {
			log.Printf("command %d rejected: %d %s", i, rep.Code, rep.Text())
		}
	}
}
