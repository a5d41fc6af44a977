package notification

import (
	"context"
	"time"
)

type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

type Kind string

const (
	KindItems    Kind = "items"
	KindFailure  Kind = "api_failure"
	KindRecovery Kind = "api_recovery"
)

// Notification is one delivered message, kept as history.
type Notification struct {
	ID          string    `json:"id"`
	EndpointTag string    `json:"endpoint_tag"`
	Channel     Channel   `json:"channel"`
	Kind        Kind      `json:"kind"`
	Recipient   string    `json:"recipient"`
	SentAt      time.Time `json:"sent_at"`
	Payload     string    `json:"payload"`
}

type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

type SMSSender interface {
	SendSMS(ctx context.Context, phone, message, endpointURL string) error
}

type EmailSender interface {
	SendEmail(ctx context.Context, msg Email, endpointURL string) error
}
