package events

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/dropDatabas3/datastreams/internal/observability/logger"
	mail "github.com/go-mail/mail"
)

// SMTPConfig configura las notificaciones por email.
type SMTPConfig struct {
	Host               string
	Port               int
	From               string
	To                 []string
	User               string
	Pass               string
	TLSMode            string // "auto" | "starttls" | "ssl" | "none"
	InsecureSkipVerify bool
}

// SMTPSink notifica eventos por email a una lista fija de destinatarios.
type SMTPSink struct {
	cfg  SMTPConfig
	send func(m *mail.Message) error
}

// NewSMTPSink crea el sink.
func NewSMTPSink(cfg SMTPConfig) *SMTPSink {
	if cfg.TLSMode == "" {
		cfg.TLSMode = "auto"
	}
	s := &SMTPSink{cfg: cfg}
	s.send = s.dialAndSend
	return s
}

func (s *SMTPSink) Emit(_ context.Context, ev Event) error {
	if len(s.cfg.To) == 0 {
		return nil
	}
	m := s.message(ev)
	if err := s.send(m); err != nil {
		logger.L().Error("smtp send failed",
			logger.Component("events.smtp"),
			logger.String("host", s.cfg.Host),
			logger.Int("port", s.cfg.Port),
			logger.Err(err))
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func (s *SMTPSink) message(ev Event) *mail.Message {
	m := mail.NewMessage()
	m.SetHeader("From", s.cfg.From)
	m.SetHeader("To", s.cfg.To...)
	m.SetHeader("Subject", "[datastreams] "+ev.Message)

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\n", ev.Message)
	if ev.DataStream != "" {
		fmt.Fprintf(&b, "data stream: %s\n", ev.DataStream)
	}
	if ev.Index != "" {
		fmt.Fprintf(&b, "backing index: %s\n", ev.Index)
	}
	fmt.Fprintf(&b, "cluster state version: %d\n", ev.StateVersion)
	fmt.Fprintf(&b, "time: %s\n", ev.Time.UTC().Format("2006-01-02 15:04:05 MST"))
	m.SetBody("text/plain", b.String())
	return m
}

func (s *SMTPSink) dialAndSend(m *mail.Message) error {
	d := mail.NewDialer(s.cfg.Host, s.cfg.Port, s.cfg.User, s.cfg.Pass)
	d.TLSConfig = &tls.Config{
		ServerName:         s.cfg.Host,
		InsecureSkipVerify: s.cfg.InsecureSkipVerify, // solo dev
	}
	switch s.cfg.TLSMode {
	case "ssl":
		d.SSL = true
	case "none":
		d.TLSConfig = &tls.Config{InsecureSkipVerify: s.cfg.InsecureSkipVerify}
	default:
		// "auto"/"starttls": go-mail negocia STARTTLS si corresponde
	}
	return d.DialAndSend(m)
}
