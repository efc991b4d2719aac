package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"strconv"
	"strings"
	"time"
)

var ErrEmailNotConfigured = errors.New("email is not configured")

type EmailSender struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
}

func NewEmailSender() *EmailSender {
	port, _ := strconv.Atoi(strings.TrimSpace(os.Getenv("EMAIL_PORT")))
	s := &EmailSender{
		Host:     strings.TrimSpace(os.Getenv("EMAIL_HOST")),
		Port:     port,
		User:     strings.TrimSpace(os.Getenv("EMAIL_USER")),
		Password: os.Getenv("EMAIL_PASSWORD"),
		From:     strings.TrimSpace(os.Getenv("EMAIL_FROM")),
	}
	if s.From == "" {
		s.From = s.User
	}
	if s.From == "" {
		s.From = "noreply@easyadvisor.in"
	}
	return s
}

func (s *EmailSender) Configured() bool {
	return s.Host != "" && s.Port > 0 && s.User != "" && s.Password != ""
}

func (s *EmailSender) Send(ctx context.Context, to string, subject string, body string) error {
	if !s.Configured() {
		return ErrEmailNotConfigured
	}

	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	dialer := &net.Dialer{Timeout: 10 * time.Second}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	client, err := smtp.NewClient(conn, s.Host)
	if err != nil {
		conn.Close()
		return err
	}
	defer client.Close()

	if ok, _ := client.Extension("STARTTLS"); ok {
		if err := client.StartTLS(&tls.Config{ServerName: s.Host}); err != nil {
			return err
		}
	}
	if err := client.Auth(smtp.PlainAuth("", s.User, s.Password, s.Host)); err != nil {
		return err
	}
	if err := client.Mail(s.From); err != nil {
		return err
	}
	if err := client.Rcpt(to); err != nil {
		return err
	}
	w, err := client.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(buildMessage(s.From, to, subject, body)); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return client.Quit()
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
