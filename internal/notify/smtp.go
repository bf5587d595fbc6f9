package notify

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/wneessen/go-mail"
	"golang.org/x/oauth2"

	"github.com/sakif/research-gate/internal/config"
)

const (
	verificationSubject = "Your Verification Code - MBSTU Research Gate"
	senderName          = "MBSTU Research Gate"

	// sendTimeout bounds one delivery, dial to QUIT. The caller's context
	// can only shorten it.
	sendTimeout = 20 * time.Second
)

var verificationTemplate = template.Must(template.New("verification").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2 style="color: #2563eb;">MBSTU Research Gate</h2>
  <p>Welcome! Use the code below to verify your email address.</p>
  <div style="background: #f3f4f6; padding: 20px; text-align: center; border-radius: 8px;">
    <span style="font-size: 32px; font-weight: bold; letter-spacing: 8px;">
{{.Code}}
    </span>
  </div>
  <p>This code will expire in 10 minutes.</p>
  <p style="color: #6b7280; font-size: 12px;">If you did not create an account, you can ignore this email.</p>
</body>
</html>
`))

// credentials is what the relay is logged in with. A zero value means no
// authentication.
type credentials struct {
	mechanism mail.SMTPAuthType
	username  string
	secret    string
}

// sendFunc delivers one message. Tests swap it out.
type sendFunc func(ctx context.Context, creds credentials, msg *mail.Msg) error

// SMTPNotifier sends the code as an HTML email.
//
// Authentication is XOAUTH2 when OAuth2 credentials are configured (the
// Gmail setup), and PLAIN with username and password otherwise. Either
// one requires TLS. Port 465 uses implicit TLS, other ports STARTTLS.
type SMTPNotifier struct {
	host     string
	port     int
	from     string
	username string
	password string
	tokens   oauth2.TokenSource
	send     sendFunc
}

// NewSMTPNotifier builds a notifier from cfg. With OAuth2 enabled, access
// tokens are minted from the refresh token and cached until they expire.
func NewSMTPNotifier(cfg config.SMTPConfig) (*SMTPNotifier, error) {
	if cfg.Host == "" {
		return nil, errors.New("notify: SMTP host is required")
	}
	if cfg.From == "" {
		return nil, errors.New("notify: SMTP from address is required")
	}

	n := &SMTPNotifier{
		host:     cfg.Host,
		port:     cfg.Port,
		from:     cfg.From,
		username: cfg.Username,
		password: cfg.Password,
	}
	n.send = n.dialAndSend

	if cfg.OAuth.Enabled() {
		oc := &oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: cfg.OAuth.TokenURL},
		}
		n.tokens = oc.TokenSource(context.Background(), &oauth2.Token{RefreshToken: cfg.OAuth.RefreshToken})
	}

	return n, nil
}

func (n *SMTPNotifier) SendVerificationCode(ctx context.Context, email, code string) error {
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if err := ctx.Err(); err != nil {
		return err
	}

	msg, err := buildVerificationMessage(n.from, email, code)
	if err != nil {
		return err
	}

	creds, err := n.credentials()
	if err != nil {
		return err
	}

	if err := n.send(ctx, creds, msg); err != nil {
		return fmt.Errorf("notify: sending mail to %s: %w", email, err)
	}
	return nil
}

func (n *SMTPNotifier) credentials() (credentials, error) {
	if n.tokens != nil {
		tok, err := n.tokens.Token()
		if err != nil {
			return credentials{}, fmt.Errorf("notify: fetching oauth2 token: %w", err)
		}
		return credentials{mechanism: mail.SMTPAuthXOAUTH2, username: n.username, secret: tok.AccessToken}, nil
	}
	if n.username == "" {
		return credentials{}, nil
	}
	return credentials{mechanism: mail.SMTPAuthPlain, username: n.username, secret: n.password}, nil
}

func (n *SMTPNotifier) dialAndSend(ctx context.Context, creds credentials, msg *mail.Msg) error {
	opts := []mail.Option{mail.WithTLSPolicy(mail.TLSOpportunistic)}
	if n.port > 0 {
		opts = append(opts, mail.WithPort(n.port))
	}
	if n.port == 465 {
		opts = append(opts, mail.WithSSL())
	}
	if deadline, ok := ctx.Deadline(); ok {
		opts = append(opts, mail.WithTimeout(time.Until(deadline)))
	}
	if creds.mechanism != "" {
		opts = append(opts,
			mail.WithTLSPolicy(mail.TLSMandatory),
			mail.WithSMTPAuth(creds.mechanism),
			mail.WithUsername(creds.username),
			mail.WithPassword(creds.secret),
		)
	}

	client, err := mail.NewClient(n.host, opts...)
	if err != nil {
		return fmt.Errorf("configuring client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func buildVerificationMessage(from, to, code string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.FromFormat(senderName, from); err != nil {
		return nil, fmt.Errorf("notify: invalid from address: %w", err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("notify: invalid recipient: %w", err)
	}
	msg.Subject(verificationSubject)
	if err := msg.SetBodyHTMLTemplate(verificationTemplate, struct{ Code string }{code}); err != nil {
		return nil, fmt.Errorf("notify: rendering verification email: %w", err)
	}
	return msg, nil
}
