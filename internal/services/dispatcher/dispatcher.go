// Package dispatcher formats item, failure and recovery alerts and hands
// them to the SMS and email senders one recipient at a time.
package dispatcher

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/domain/item"
	"github.com/NordCoder/Feedwatch/internal/domain/notification"
	"github.com/NordCoder/Feedwatch/internal/obs"
	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const DefaultTimezone = "Asia/Dhaka"

var deliveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "feedwatch_notifications_total",
	Help: "Notification sends by channel, kind and result",
}, []string{"channel", "kind", "result"})

type Config struct {
	// ControlURL is the public base URL of the control server, used to
	// build mute links.
	ControlURL string
	Timezone   string
}

// Result is the outcome of one send to one recipient.
type Result struct {
	Channel   notification.Channel
	Recipient string
	Err       error
}

// Request describes one item notification on a single channel.
type Request struct {
	Channel     notification.Channel
	Recipients  []string
	Items       []item.Item
	Tag         string
	MuteLink    string
	EndpointURL string
}

type Dispatcher struct {
	sms        notification.SMSSender
	email      notification.EmailSender
	history    notification.Repo
	clock      clock.Clock
	loc        *time.Location
	controlURL string
	log        *zap.Logger
}

func New(sms notification.SMSSender, email notification.EmailSender, cfg Config) (*Dispatcher, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", tz, err)
	}
	return &Dispatcher{
		sms:        sms,
		email:      email,
		clock:      clock.New(),
		loc:        loc,
		controlURL: strings.TrimRight(cfg.ControlURL, "/"),
		log:        zap.L().With(zap.String("component", "dispatcher")),
	}, nil
}

func (d *Dispatcher) WithLogger(l *zap.Logger) *Dispatcher {
	if l == nil {
		return d
	}
	cp := *d
	cp.log = l.With(zap.String("component", "dispatcher"))
	return &cp
}

// WithHistory records every successful send in r.
func (d *Dispatcher) WithHistory(r notification.Repo) *Dispatcher {
	cp := *d
	cp.history = r
	return &cp
}

func (d *Dispatcher) WithClock(c clock.Clock) *Dispatcher {
	cp := *d
	cp.clock = c
	return &cp
}

// MuteLink points at the item mute page for the endpoint, or is empty when
// manual mute is disabled for it.
func (d *Dispatcher) MuteLink(cfg *endpoint.Config) string {
	if !cfg.EnableManualMute {
		return ""
	}
	return d.controlURL + "/mute/items/ui?endpoint=" + url.QueryEscape(cfg.Tag)
}

func (d *Dispatcher) apiMuteLink(cfg *endpoint.Config) string {
	if !cfg.EnableManualMute {
		return ""
	}
	return d.controlURL + "/mute/api?endpoint=" + url.QueryEscape(cfg.Tag)
}

func (d *Dispatcher) now() string {
	return d.clock.Now().In(d.loc).Format(timeLayout)
}

// Notify sends one summary message per recipient. A failed send is logged
// and recorded in its Result; the remaining recipients are still tried.
func (d *Dispatcher) Notify(ctx context.Context, req Request) []Result {
	if len(req.Items) == 0 || len(req.Recipients) == 0 {
		return nil
	}
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "dispatcher.notify",
		trace.WithAttributes(
			attribute.String("endpoint.tag", req.Tag),
			attribute.String("channel", string(req.Channel)),
			attribute.Int("items", len(req.Items)),
			attribute.Int("recipients", len(req.Recipients)),
		),
	)
	defer span.End()

	switch req.Channel {
	case notification.ChannelSMS:
		msg := SMSText(req.Tag, len(req.Items))
		return d.sendSMS(ctx, req.Tag, notification.KindItems, req.Recipients, msg, req.EndpointURL)
	case notification.ChannelEmail:
		m, err := itemsEmail(req.Tag, req.Items, req.MuteLink, d.now())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "render")
			return failAll(req.Channel, req.Recipients, err)
		}
		return d.sendEmail(ctx, req.Tag, notification.KindItems, req.Recipients, m, req.EndpointURL)
	default:
		return failAll(req.Channel, req.Recipients, fmt.Errorf("unknown channel %q", req.Channel))
	}
}

// NotifyItems fans items out to every ready channel of cfg.
func (d *Dispatcher) NotifyItems(ctx context.Context, cfg *endpoint.Config, items []item.Item) []Result {
	var out []Result
	if cfg.SMSReady() {
		out = append(out, d.Notify(ctx, Request{
			Channel: notification.ChannelSMS, Recipients: cfg.PhoneNumbers, Items: items,
			Tag: cfg.Tag, EndpointURL: cfg.SMSEndpoint,
		})...)
	}
	if cfg.EmailReady() {
		out = append(out, d.Notify(ctx, Request{
			Channel: notification.ChannelEmail, Recipients: cfg.EmailAddresses, Items: items,
			Tag: cfg.Tag, MuteLink: d.MuteLink(cfg), EndpointURL: cfg.EmailEndpoint,
		})...)
	}
	return out
}

// NotifyFailure sends one API failure alert per recipient on every ready
// channel. status is 0 when no HTTP response was received.
func (d *Dispatcher) NotifyFailure(ctx context.Context, cfg *endpoint.Config, status int, errText string) []Result {
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "dispatcher.failure",
		trace.WithAttributes(attribute.String("endpoint.tag", cfg.Tag), attribute.Int("http.status", status)))
	defer span.End()

	var out []Result
	if cfg.SMSReady() {
		msg := fmt.Sprintf("[%s] %s. Error: %s", cfg.Tag, failureSubject(status), errText)
		out = append(out, d.sendSMS(ctx, cfg.Tag, notification.KindFailure, cfg.PhoneNumbers, msg, cfg.SMSEndpoint)...)
	}
	if cfg.EmailReady() {
		m, err := failureEmail(failureView{
			Tag: cfg.Tag, Status: statusText(status), Error: errText,
			MuteLink: d.apiMuteLink(cfg), Now: d.now(),
		}, status)
		if err != nil {
			return append(out, failAll(notification.ChannelEmail, cfg.EmailAddresses, err)...)
		}
		out = append(out, d.sendEmail(ctx, cfg.Tag, notification.KindFailure, cfg.EmailAddresses, m, cfg.EmailEndpoint)...)
	}
	return out
}

// NotifyRecovery emails every address once; the caller decides whether
// recovery mail is wanted.
func (d *Dispatcher) NotifyRecovery(ctx context.Context, cfg *endpoint.Config, previous string) []Result {
	if !cfg.EmailReady() {
		return nil
	}
	ctx, span := otel.Tracer("dispatcher").Start(ctx, "dispatcher.recovery",
		trace.WithAttributes(attribute.String("endpoint.tag", cfg.Tag)))
	defer span.End()

	m, err := recoveryEmail(recoveryView{Tag: cfg.Tag, Previous: orNA(previous), Now: d.now()})
	if err != nil {
		return failAll(notification.ChannelEmail, cfg.EmailAddresses, err)
	}
	return d.sendEmail(ctx, cfg.Tag, notification.KindRecovery, cfg.EmailAddresses, m, cfg.EmailEndpoint)
}

func (d *Dispatcher) sendSMS(ctx context.Context, tag string, kind notification.Kind, phones []string, msg, endpointURL string) []Result {
	out := make([]Result, 0, len(phones))
	for _, phone := range phones {
		err := d.sms.SendSMS(ctx, phone, msg, endpointURL)
		out = append(out, d.settle(ctx, tag, notification.ChannelSMS, kind, phone, msg, err))
	}
	return out
}

func (d *Dispatcher) sendEmail(ctx context.Context, tag string, kind notification.Kind, to []string, m notification.Email, endpointURL string) []Result {
	out := make([]Result, 0, len(to))
	for _, addr := range to {
		msg := m
		msg.To = addr
		err := d.email.SendEmail(ctx, msg, endpointURL)
		out = append(out, d.settle(ctx, tag, notification.ChannelEmail, kind, addr, msg.Subject, err))
	}
	return out
}

func (d *Dispatcher) settle(ctx context.Context, tag string, ch notification.Channel, kind notification.Kind, to, payload string, err error) Result {
	log := obs.WithTrace(ctx, d.log).With(
		zap.String("tag", tag),
		zap.String("channel", string(ch)),
		zap.String("kind", string(kind)),
		zap.String("recipient", to),
	)
	if err != nil {
		deliveries.WithLabelValues(string(ch), string(kind), "error").Inc()
		log.Warn("delivery failed", zap.Error(err))
		return Result{Channel: ch, Recipient: to, Err: err}
	}
	deliveries.WithLabelValues(string(ch), string(kind), "ok").Inc()
	log.Info("notification sent")

	if d.history != nil {
		n := &notification.Notification{
			ID:          uuid.NewString(),
			EndpointTag: tag,
			Channel:     ch,
			Kind:        kind,
			Recipient:   to,
			SentAt:      d.clock.Now().UTC(),
			Payload:     payload,
		}
		if herr := d.history.Create(ctx, n); herr != nil {
			log.Warn("record notification", zap.Error(herr))
		}
	}
	return Result{Channel: ch, Recipient: to}
}

func failAll(ch notification.Channel, to []string, err error) []Result {
	out := make([]Result, 0, len(to))
	for _, r := range to {
		out = append(out, Result{Channel: ch, Recipient: r, Err: err})
	}
	return out
}
