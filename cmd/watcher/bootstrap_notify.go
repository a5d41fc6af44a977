package main

import (
	config "github.com/NordCoder/Feedwatch/internal/config/watcher"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/services/datasource"
	"github.com/NordCoder/Feedwatch/internal/services/dispatcher"
	"github.com/NordCoder/Feedwatch/internal/services/gateway"
	"go.uber.org/zap"
)

func initDispatcher(cfg *config.Config, history notification.Repo, l *zap.Logger) (*dispatcher.Dispatcher, error) {
	n := cfg.Notify
	hc := datasource.NewHTTPClient(datasource.Config{
		Timeout:         n.Timeout,
		FollowRedirects: true,
		VerifyTLS:       true,
	})
	gw := gateway.New(hc, n.Attempts, l)

	var email notification.EmailSender = gw
	if n.SMTP.Enable {
		email = gateway.NewMailer(gateway.SMTPConfig{
			Host:               n.SMTP.Host,
			Port:               n.SMTP.Port,
			User:               n.SMTP.User,
			Password:           n.SMTP.Password,
			From:               n.SMTP.From,
			SSL:                n.SMTP.SSL,
			InsecureSkipVerify: n.SMTP.InsecureSkipVerify,
			SubjPrefix:         n.SMTP.SubjectPrefix,
		}).WithLogger(l)
		l.Info("email via smtp", zap.String("host", n.SMTP.Host), zap.Int("port", n.SMTP.Port))
	}

	d, err := dispatcher.New(gw, email, dispatcher.Config{
		ControlURL: n.ControlURL,
		Timezone:   n.Timezone,
	})
	if err != nil {
		return nil, err
	}
	d = d.WithLogger(l)
	if history != nil {
		d = d.WithHistory(history)
	}
	return d, nil
}
