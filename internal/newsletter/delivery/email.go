// n6 - security event exchange platform
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package delivery sends the notifier's rendered digest emails over
// plain SMTP. It is narrowed to the one channel C9 needs: the
// teacher's delivery package also shipped Discord/Slack/Telegram/
// webhook/in-app channels and a multi-channel Manager, none of which
// has an n6 recipient type to serve.
package delivery

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"
)

// Message is one plain-text email to send.
type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

// Sender sends Messages over SMTP, one connection per call.
type Sender struct {
	host           string
	defaultTimeout time.Duration
}

// NewSender returns a Sender that dials host (e.g. "mail.example.org:25").
func NewSender(host string) *Sender {
	return &Sender{host: host, defaultTimeout: 30 * time.Second}
}

// Send delivers msg over a fresh SMTP connection.
func (s *Sender) Send(ctx context.Context, msg Message) error {
	heloHost, _, err := net.SplitHostPort(s.host)
	if err != nil {
		heloHost = s.host
	}

	dialer := &net.Dialer{Timeout: s.defaultTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", s.host)
	if err != nil {
		return fmt.Errorf("delivery: connect to smtp server: %w", err)
	}
	defer func() { _ = conn.Close() }()

	client, err := smtp.NewClient(conn, heloHost)
	if err != nil {
		return fmt.Errorf("delivery: create smtp client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if err := client.Mail(msg.From); err != nil {
		return fmt.Errorf("delivery: smtp MAIL: %w", err)
	}
	if err := client.Rcpt(msg.To); err != nil {
		return fmt.Errorf("delivery: smtp RCPT: %w", err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("delivery: smtp DATA: %w", err)
	}
	if _, err := w.Write([]byte(buildMessage(msg))); err != nil {
		_ = w.Close()
		return fmt.Errorf("delivery: write message body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("delivery: close message body: %w", err)
	}

	return client.Quit()
}

func buildMessage(msg Message) string {
	var b strings.Builder
	b.WriteString("From: " + msg.From + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + msg.Subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return b.String()
}
