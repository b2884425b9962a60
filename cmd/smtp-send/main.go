// Command smtp-send submits a message to an SMTP or LMTP server.
//
// The message is either read whole from a file (or stdin) or composed from
// the -subject and -text flags. Server settings come from a TOML
// configuration file, from flags, or both, with flags winning.
//
//	smtp-send -addr mail.example.org:587 -config smtpclient.toml \
//	    -from alice@example.org -to bob@example.net \
//	    -subject Hello -text "How are you?"
package main

import (
	"bytes"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/sirupsen/logrus"

	"github.com/mailgear/go-smtpclient/config"
)

var (
	configPath = flag.String("config", "", "Path to a TOML configuration file")
	addr       = flag.String("addr", "", "Server address as host:port, overrides the configuration file")
	security   = flag.String("security", "", "Connection security: starttls, tls or plain")
	from       = flag.String("from", "", "Envelope sender address")
	to         = flag.String("to", "", "Comma-separated envelope recipient addresses")
	subject    = flag.String("subject", "", "Subject of the composed message")
	text       = flag.String("text", "", "Body of the composed message")
	file       = flag.String("file", "", "Read a complete message from this file instead of composing one, - for stdin")
	verbose    = flag.Bool("verbose", false, "Log at debug level")
)

func main() {
	flag.Parse()
	if *verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.NewDefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.Load(*configPath)
		if err != nil {
			logrus.WithError(err).Fatal("cannot load configuration")
		}
	}
	if *addr != "" {
		host, portStr, err := net.SplitHostPort(*addr)
		if err != nil {
			logrus.WithError(err).Fatal("-addr must be host:port")
		}
		port, err := strconv.Atoi(portStr)
		if err != nil {
			logrus.WithError(err).Fatal("-addr must be host:port")
		}
		cfg.Server.Host = host
		cfg.Server.Port = port
	}
	if *security != "" {
		cfg.Server.Security = *security
	}

	rcpts := splitRecipients(*to)
	if *from == "" || len(rcpts) == 0 {
		logrus.Fatal("-from and -to are required")
	}

	raw, err := loadMessage(rcpts)
	if err != nil {
		logrus.WithError(err).Fatal("cannot build message")
	}

	b, err := cfg.Builder()
	if err != nil {
		logrus.WithError(err).Fatal("bad server configuration")
	}

	log := logrus.WithFields(logrus.Fields{
		"server":   net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		"protocol": b.Protocol,
	})

	start := time.Now()
	s, err := b.Connect()
	if err != nil {
		log.WithError(err).Fatal("cannot establish session")
	}
	log.WithField("elapsed", time.Since(start)).Debug("session established")

	if err := s.Send(*from, rcpts, bytes.NewReader(raw)); err != nil {
		s.Close()
		log.WithError(err).Fatal("delivery failed")
	}
	if err := s.Quit(); err != nil {
		log.WithError(err).Warn("QUIT failed")
	}

	log.WithFields(logrus.Fields{
		"from":  *from,
		"rcpts": len(rcpts),
		"bytes": len(raw),
	}).Info("message accepted")
}

func splitRecipients(list string) []string {
	var rcpts []string
	for _, rcpt := range strings.Split(list, ",") {
		if rcpt = strings.TrimSpace(rcpt); rcpt != "" {
			rcpts = append(rcpts, rcpt)
		}
	}
	return rcpts
}

func loadMessage(rcpts []string) ([]byte, error) {
	if *file == "-" {
		return io.ReadAll(os.Stdin)
	}
	if *file != "" {
		return os.ReadFile(*file)
	}
	return composeMessage(rcpts)
}

// composeMessage builds a single-part text message from the -subject and
// -text flags.
func composeMessage(rcpts []string) ([]byte, error) {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		hostname = "localhost"
	}

	var h message.Header
	h.Set("From", *from)
	h.Set("To", strings.Join(rcpts, ", "))
	h.Set("Subject", *subject)
	h.Set("Date", time.Now().Format(time.RFC1123Z))
	h.Set("Message-ID", fmt.Sprintf("<%d.smtp-send@%s>", time.Now().UnixNano(), hostname))
	h.Set("Content-Type", "text/plain; charset=utf-8")

	var buf bytes.Buffer
	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, err
	}
	if _, err := io.WriteString(w, *text); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
