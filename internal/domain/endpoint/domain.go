package endpoint

import (
	"errors"
	"strings"
	"time"
)

var (
	ErrNotFound       = errors.New("endpoint not found")
	ErrInvalidConfig  = errors.New("invalid endpoint config")
	ErrImmutableField = errors.New("immutable field")
)

type Method string

const (
	MethodGet    Method = "GET"
	MethodPost   Method = "POST"
	MethodPut    Method = "PUT"
	MethodPatch  Method = "PATCH"
	MethodDelete Method = "DELETE"
)

type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthBearer AuthType = "bearer"
	AuthBasic  AuthType = "basic"
)

const DefaultCheckInterval = 60 * time.Second

// Mapping holds the dot/bracket paths used to turn a response into items.
type Mapping struct {
	ItemsPath     string `json:"itemsPath" mapstructure:"itemsPath"`
	IDPath        string `json:"idPath" mapstructure:"idPath"`
	TimestampPath string `json:"timestampPath" mapstructure:"timestampPath"`
	TitlePath     string `json:"titlePath,omitempty" mapstructure:"titlePath"`
	DetailsPath   string `json:"detailsPath,omitempty" mapstructure:"detailsPath"`
}

// Config is the full definition of one polled endpoint, keyed by Tag.
type Config struct {
	Tag         string            `json:"tag" mapstructure:"tag"`
	APIEndpoint string            `json:"apiEndpoint" mapstructure:"apiEndpoint"`
	Method      Method            `json:"method" mapstructure:"method"`
	Headers     map[string]string `json:"headers,omitempty" mapstructure:"headers"`
	Query       map[string]string `json:"query,omitempty" mapstructure:"query"`
	Body        map[string]any    `json:"body,omitempty" mapstructure:"body"`

	AuthType     AuthType `json:"authType" mapstructure:"authType"`
	AuthToken    string   `json:"authToken,omitempty" mapstructure:"authToken"`
	AuthUsername string   `json:"authUsername,omitempty" mapstructure:"authUsername"`
	AuthPassword string   `json:"authPassword,omitempty" mapstructure:"authPassword"`

	Mapping `mapstructure:",squash"`

	EnableSMS           bool     `json:"enableSms" mapstructure:"enableSms"`
	EnableEmail         bool     `json:"enableEmail" mapstructure:"enableEmail"`
	EnableManualMute    bool     `json:"enableManualMute" mapstructure:"enableManualMute"`
	EnableRecoveryEmail bool     `json:"enableRecoveryEmail" mapstructure:"enableRecoveryEmail"`
	PhoneNumbers        []string `json:"phoneNumbers" mapstructure:"phoneNumbers"`
	EmailAddresses      []string `json:"emailAddresses" mapstructure:"emailAddresses"`

	// CheckIntervalMs is the polling period in milliseconds.
	CheckIntervalMs int64 `json:"checkInterval" mapstructure:"checkInterval"`

	SMSEndpoint   string `json:"smsEndpoint,omitempty" mapstructure:"smsEndpoint"`
	EmailEndpoint string `json:"emailEndpoint,omitempty" mapstructure:"emailEndpoint"`

	UpdatedAt time.Time `json:"updatedAt,omitempty" mapstructure:"-"`
}

// GlobalSettings carries values shared by every endpoint. Delivery endpoints
// are always taken from here, never from per-endpoint input.
type GlobalSettings struct {
	SMSEndpoint   string
	EmailEndpoint string
}

func (c *Config) Interval() time.Duration {
	if c.CheckIntervalMs <= 0 {
		return DefaultCheckInterval
	}
	return time.Duration(c.CheckIntervalMs) * time.Millisecond
}

func (c *Config) NormalizedMethod() Method {
	m := Method(strings.ToUpper(strings.TrimSpace(string(c.Method))))
	if m == "" {
		return MethodGet
	}
	return m
}

func (c *Config) NormalizedAuth() AuthType {
	switch AuthType(strings.ToLower(string(c.AuthType))) {
	case AuthBearer:
		return AuthBearer
	case AuthBasic:
		return AuthBasic
	default:
		return AuthNone
	}
}

func (c *Config) SMSReady() bool {
	return c.EnableSMS && len(c.PhoneNumbers) > 0 && c.SMSEndpoint != ""
}

func (c *Config) EmailReady() bool {
	return c.EnableEmail && len(c.EmailAddresses) > 0 && c.EmailEndpoint != ""
}

// Clone returns a deep copy so callers can mutate the result freely.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	cp := *c
	cp.Headers = cloneStrings(c.Headers)
	cp.Query = cloneStrings(c.Query)
	if c.Body != nil {
		cp.Body = make(map[string]any, len(c.Body))
		for k, v := range c.Body {
			cp.Body[k] = v
		}
	}
	cp.PhoneNumbers = append([]string(nil), c.PhoneNumbers...)
	cp.EmailAddresses = append([]string(nil), c.EmailAddresses...)
	return &cp
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
