package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"time"

	nopw "github.com/MrEthical07/goNoPassword"
	"gopkg.in/gomail.v2"
)

// ErrNoRecipient is returned when the principal has no email address.
var ErrNoRecipient = errors.New("principal has no email address")

// MailParams is passed as data when executing the mail template.
type MailParams struct {
	Email          string
	Username       string
	SiteName       string
	URL            string
	Code           string
	CodeExpiration time.Duration
	SenderName     string
}

// DefaultMailTemplate is the default for MailConfig.Template.
const DefaultMailTemplate = `Hi {{if .Username}}{{.Username}}{{else}}{{.Email}}{{end}},

Use this link to sign in to {{.SiteName}}:

{{.URL}}

Or enter this login code:

{{.Code}}

The code is valid for {{printf "%.f" .CodeExpiration.Minutes}} minutes and works once.

If you did not ask to sign in, you can ignore this email.


Regards,

{{.SenderName}}
`

// DefaultMailSubject is the default for MailConfig.Subject.
const DefaultMailSubject = "Your login code"

// Dialer sends composed messages. *gomail.Dialer satisfies it.
type Dialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// MailConfig configures a MailSink.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL forces implicit TLS. gomail enables it by default on port 465.
	SSL bool

	From       string
	SenderName string
	SiteName   string
	Subject    string
	// Template is a text/template source executed with MailParams.
	Template string
}

// MailSink emails login codes over SMTP.
type MailSink struct {
	dialer  Dialer
	from    string
	sender  string
	site    string
	subject string
	tmpl    *template.Template
}

// NewMailSink returns a sink that dials cfg.Host for every message.
func NewMailSink(cfg MailConfig) (*MailSink, error) {
	if cfg.Host == "" {
		return nil, errors.New("mail host required")
	}
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	if cfg.SSL {
		d.SSL = true
	}
	return NewMailSinkWithDialer(cfg, d)
}

// NewMailSinkWithDialer returns a sink sending through d.
func NewMailSinkWithDialer(cfg MailConfig, d Dialer) (*MailSink, error) {
	if d == nil {
		return nil, errors.New("nil mail dialer")
	}
	if cfg.From == "" {
		return nil, errors.New("mail sender address required")
	}

	src := cfg.Template
	if src == "" {
		src = DefaultMailTemplate
	}
	tmpl, err := template.New("login_code").Parse(src)
	if err != nil {
		return nil, fmt.Errorf("parse mail template: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = DefaultMailSubject
	}
	sender := cfg.SenderName
	if sender == "" {
		sender = cfg.SiteName
	}

	return &MailSink{
		dialer:  d,
		from:    cfg.From,
		sender:  sender,
		site:    cfg.SiteName,
		subject: subject,
		tmpl:    tmpl,
	}, nil
}

func (s *MailSink) Name() string { return "mail" }

// Render returns the message body for d.
func (s *MailSink) Render(d nopw.Delivery) (string, error) {
	params := MailParams{
		Email:          d.Principal.Email,
		Username:       d.Principal.Username,
		SiteName:       s.site,
		URL:            d.URL,
		Code:           d.Code,
		CodeExpiration: d.TTL,
		SenderName:     s.sender,
	}

	var b strings.Builder
	if err := s.tmpl.Execute(&b, params); err != nil {
		return "", fmt.Errorf("execute mail template: %w", err)
	}
	return b.String(), nil
}

// Message composes the email for d without sending it.
func (s *MailSink) Message(d nopw.Delivery) (*gomail.Message, error) {
	if d.Principal.Email == "" {
		return nil, ErrNoRecipient
	}
	body, err := s.Render(d)
	if err != nil {
		return nil, err
	}

	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.from, s.sender)
	m.SetHeader("To", d.Principal.Email)
	m.SetHeader("Subject", s.subject)
	m.SetBody("text/plain", body)
	return m, nil
}

// Deliver sends one message. gomail has no context support, so ctx is only
// checked before dialing; the engine bounds the call with its own timeout.
func (s *MailSink) Deliver(ctx context.Context, d nopw.Delivery) error {
	m, err := s.Message(d)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	return nil
}
