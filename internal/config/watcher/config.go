package watcher_config

import (
	"strings"
	"time"

	"github.com/NordCoder/Feedwatch/internal/domain/endpoint"
	"github.com/NordCoder/Feedwatch/internal/obs"
	pg "github.com/NordCoder/Feedwatch/internal/repository/postgres"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Server struct {
	ControlAddr     string        `mapstructure:"control_addr"`
	MetricsAddr     string        `mapstructure:"metrics_addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Driver string

const (
	DriverFile     Driver = "file"
	DriverBolt     Driver = "bolt"
	DriverPostgres Driver = "postgres"
)

type FileStorage struct {
	StatePath     string `mapstructure:"state_path"`
	OverridesPath string `mapstructure:"overrides_path"`
	// LegacyTag adopts the single-endpoint fields of an old state file.
	LegacyTag string `mapstructure:"legacy_tag"`
}

type BoltStorage struct {
	Path    string        `mapstructure:"path"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type Storage struct {
	Driver Driver      `mapstructure:"driver"`
	File   FileStorage `mapstructure:"file"`
	Bolt   BoltStorage `mapstructure:"bolt"`
}

type Kafka struct {
	Enable       bool     `mapstructure:"enable"`
	Brokers      []string `mapstructure:"brokers"`
	EventsTopic  string   `mapstructure:"events_topic"`
	ControlTopic string   `mapstructure:"control_topic"`
	GroupID      string   `mapstructure:"group_id"`
}

type Outbox struct {
	Enable        bool          `mapstructure:"enable"`
	Workers       int           `mapstructure:"workers"`
	BatchSize     int           `mapstructure:"batch_size"`
	WaitTime      time.Duration `mapstructure:"wait_time"`
	InProgressTTL time.Duration `mapstructure:"in_progress_ttl"`
	Retention     time.Duration `mapstructure:"retention"`
}

type Fetch struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	UserAgent       string        `mapstructure:"user_agent"`
	FollowRedirects bool          `mapstructure:"follow_redirects"`
	VerifyTLS       bool          `mapstructure:"verify_tls"`
}

type SMTP struct {
	Enable             bool   `mapstructure:"enable"`
	Host               string `mapstructure:"host"`
	Port               int    `mapstructure:"port"`
	User               string `mapstructure:"user"`
	Password           string `mapstructure:"password"`
	From               string `mapstructure:"from"`
	SSL                bool   `mapstructure:"ssl"`
	InsecureSkipVerify bool   `mapstructure:"insecure_skip_verify"`
	SubjectPrefix      string `mapstructure:"subject_prefix"`
}

type Notify struct {
	SMSEndpoint   string        `mapstructure:"sms_endpoint"`
	EmailEndpoint string        `mapstructure:"email_endpoint"`
	ControlURL    string        `mapstructure:"control_url"`
	Timezone      string        `mapstructure:"timezone"`
	Attempts      int           `mapstructure:"attempts"`
	Timeout       time.Duration `mapstructure:"timeout"`
	SMTP          SMTP          `mapstructure:"smtp"`
}

func (n *Notify) AsGlobalSettings() endpoint.GlobalSettings {
	return endpoint.GlobalSettings{SMSEndpoint: n.SMSEndpoint, EmailEndpoint: n.EmailEndpoint}
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	App     App       `mapstructure:"app"`
	Server  Server    `mapstructure:"server"`
	Storage Storage   `mapstructure:"storage"`
	DB      pg.Config `mapstructure:"db"`
	Kafka   Kafka     `mapstructure:"kafka"`
	Outbox  Outbox    `mapstructure:"outbox"`
	Fetch   Fetch     `mapstructure:"fetch"`
	Notify  Notify    `mapstructure:"notify"`
	OTEL    OTEL      `mapstructure:"otel"`
	Log     Log       `mapstructure:"log"`

	// Endpoints are the base definitions; overrides written at runtime are
	// layered on top of them.
	Endpoints map[string]endpoint.Config `mapstructure:"endpoints"`
}

func (c *Config) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      c.OTEL.Enable,
		Endpoint:    c.OTEL.OTLPEndpoint,
		ServiceName: c.OTEL.ServiceName,
		Version:     c.App.Version,
		Env:         c.App.Env,
		SampleRatio: c.OTEL.SampleRatio,
	}
}

func (c *Config) AsLoggerConfig() obs.LogConfig {
	return obs.LogConfig{
		Level:  c.Log.Level,
		Pretty: c.Log.Pretty,
		App:    c.App.Name,
		Env:    c.App.Env,
		Ver:    c.App.Version,
	}
}

// BaseEndpoints keys every base definition by its tag. Viper lowercases map
// keys, so an explicit tag field wins over the key.
func (c *Config) BaseEndpoints() map[string]endpoint.Config {
	out := make(map[string]endpoint.Config, len(c.Endpoints))
	for key, ep := range c.Endpoints {
		tag := strings.TrimSpace(ep.Tag)
		if tag == "" {
			tag = key
		}
		ep.Tag = tag
		out[tag] = ep
	}
	return out
}

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }
