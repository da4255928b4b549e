package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"
)

// SMTPConfig configures the SMTP dialer
type SMTPConfig struct {
	// Host is the SMTP server hostname
	Host string
	// Port is the SMTP server port
	Port int
	// Username is the SMTP authentication identity
	Username string
	// Password is the SMTP authentication secret
	Password string
	// Timeout bounds connect, TLS upgrade, authentication and each send
	Timeout time.Duration
	// ImplicitTLS dials TLS directly instead of upgrading with STARTTLS
	ImplicitTLS bool
	// TLSConfig overrides the default TLS settings; used by tests
	TLSConfig *tls.Config
}

// SMTPDialer is a Dialer backed by net/smtp
type SMTPDialer struct {
	cfg  SMTPConfig
	addr string
}

// NewSMTPDialer constructs an SMTP dialer
func NewSMTPDialer(cfg SMTPConfig) (*SMTPDialer, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, ErrHostPortRequired
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMTPDialer{
		cfg:  cfg,
		addr: net.JoinHostPort(cfg.Host, fmt.Sprint(cfg.Port)),
	}, nil
}

func (d *SMTPDialer) tlsConfig() *tls.Config {
	if d.cfg.TLSConfig != nil {
		return d.cfg.TLSConfig
	}
	return &tls.Config{ServerName: d.cfg.Host, MinVersion: tls.VersionTLS12}
}

// Dial connects, upgrades to TLS and authenticates
func (d *SMTPDialer) Dial(ctx context.Context) (Conn, error) {
	netDialer := &net.Dialer{Timeout: d.cfg.Timeout}

	var conn net.Conn
	var err error
	if d.cfg.ImplicitTLS {
		conn, err = (&tls.Dialer{NetDialer: netDialer, Config: d.tlsConfig()}).DialContext(ctx, "tcp", d.addr)
	} else {
		conn, err = netDialer.DialContext(ctx, "tcp", d.addr)
	}
	if err != nil {
		return nil, fmt.Errorf("smtp: connect %s: %w", d.addr, err)
	}

	// the whole handshake shares one deadline
	_ = conn.SetDeadline(time.Now().Add(d.cfg.Timeout))

	client, err := smtp.NewClient(conn, d.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp: greeting: %w", err)
	}

	if !d.cfg.ImplicitTLS {
		if ok, _ := client.Extension("STARTTLS"); !ok {
			_ = client.Close()
			return nil, ErrStartTLSUnsupported
		}
		if err := client.StartTLS(d.tlsConfig()); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp: starttls: %w", err)
		}
	}

	if d.cfg.Username != "" {
		if ok, _ := client.Extension("AUTH"); !ok {
			_ = client.Close()
			return nil, ErrAuthUnsupported
		}
		auth := smtp.PlainAuth("", d.cfg.Username, d.cfg.Password, d.cfg.Host)
		if err := client.Auth(auth); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("smtp: auth: %w", err)
		}
	}

	_ = conn.SetDeadline(time.Time{})

	return &smtpConn{client: client, conn: conn, timeout: d.cfg.Timeout}, nil
}

type smtpConn struct {
	client  *smtp.Client
	conn    net.Conn
	timeout time.Duration
}

// Send delivers one message. After a rejected message the transaction is reset
// so the next Send starts clean.
func (c *smtpConn) Send(ctx context.Context, from, to string, raw []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_ = c.conn.SetDeadline(time.Now().Add(c.timeout))
	defer c.conn.SetDeadline(time.Time{})

	if err := c.send(from, to, raw); err != nil {
		_ = c.client.Reset()
		return err
	}
	return nil
}

func (c *smtpConn) send(from, to string, raw []byte) error {
	if err := c.client.Mail(from); err != nil {
		return fmt.Errorf("smtp: MAIL FROM: %w", err)
	}
	if err := c.client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp: RCPT TO %s: %w", to, err)
	}
	w, err := c.client.Data()
	if err != nil {
		return fmt.Errorf("smtp: DATA: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp: write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp: end of data: %w", err)
	}
	return nil
}

// Close ends the session with QUIT, falling back to closing the socket
func (c *smtpConn) Close() error {
	if err := c.client.Quit(); err != nil {
		return c.client.Close()
	}
	return nil
}
