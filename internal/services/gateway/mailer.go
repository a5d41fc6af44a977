package gateway

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"
)

var _ notification.EmailSender = (*Mailer)(nil)

type SMTPConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	From               string
	SSL                bool
	InsecureSkipVerify bool
	SubjPrefix         string
}

// Mailer sends email straight to an SMTP relay, bypassing the gateway.
type Mailer struct {
	dialer     *gomail.Dialer
	from       string
	subjPrefix string
	log        *zap.Logger
}

func NewMailer(cfg SMTPConfig) *Mailer {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.User, cfg.Password)
	d.SSL = cfg.SSL
	d.TLSConfig = &tls.Config{ServerName: cfg.Host, InsecureSkipVerify: cfg.InsecureSkipVerify}
	return &Mailer{
		dialer:     d,
		from:       cfg.From,
		subjPrefix: cfg.SubjPrefix,
		log:        zap.L().With(zap.String("component", "gateway.mailer")),
	}
}

func (m *Mailer) WithLogger(l *zap.Logger) *Mailer {
	if l == nil {
		return m
	}
	cp := *m
	cp.log = l.With(zap.String("component", "gateway.mailer"))
	return &cp
}

// SendEmail ignores endpointURL; the relay comes from SMTPConfig.
func (m *Mailer) SendEmail(ctx context.Context, msg notification.Email, _ string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	gm := m.message(msg)

	start := time.Now()
	log := m.log.With(
		zap.String("smtp_host", m.dialer.Host),
		zap.Int("smtp_port", m.dialer.Port),
		zap.String("to", msg.To),
	)
	if err := m.dialer.DialAndSend(gm); err != nil {
		log.Error("smtp send failed", zap.Error(err))
		return err
	}
	log.Info("email sent", zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (m *Mailer) message(msg notification.Email) *gomail.Message {
	gm := gomail.NewMessage()
	gm.SetHeader("From", m.from)
	gm.SetHeader("To", msg.To)
	gm.SetHeader("Subject", strings.TrimSpace(m.subjPrefix+" "+msg.Subject))
	gm.SetBody("text/plain", msg.Text)
	if msg.HTML != "" {
		gm.AddAlternative("text/html", msg.HTML)
	}
	return gm
}
