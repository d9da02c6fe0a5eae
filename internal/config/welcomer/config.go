package welcomer_config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/NordCoder/Welcomer/internal/obs"
	"github.com/NordCoder/Welcomer/internal/obs/retry"
	kafkax "github.com/NordCoder/Welcomer/internal/repository/kafka"
	pginfra "github.com/NordCoder/Welcomer/internal/repository/postgres"
)

const (
	SourceDiscord = "discord"
	SourceKafka   = "kafka"

	SettleImages = "images"
	SettleFixed  = "fixed"
)

type App struct {
	Name    string `mapstructure:"name"`
	Env     string `mapstructure:"env"`
	Version string `mapstructure:"version"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Discord struct {
	Token          string        `mapstructure:"token"`
	ChannelID      string        `mapstructure:"channel_id"`
	CDNHost        string        `mapstructure:"cdn_host"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type Source struct {
	Kind string `mapstructure:"kind"`
}

type KafkaIn struct {
	Brokers       []string `mapstructure:"brokers"`
	Topic         string   `mapstructure:"topic"`
	GroupID       string   `mapstructure:"group_id"`
	FromBeginning bool     `mapstructure:"from_beginning"`
}

type Render struct {
	ChromePath    string        `mapstructure:"chrome_path"`
	NoSandbox     bool          `mapstructure:"no_sandbox"`
	Width         int           `mapstructure:"width" validate:"gt=0"`
	Height        int           `mapstructure:"height" validate:"gt=0"`
	SettleMode    string        `mapstructure:"settle_mode"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" validate:"gte=0"`
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxConcurrent int64         `mapstructure:"max_concurrent" validate:"min=1"`
}

type Card struct {
	BackgroundURL string `mapstructure:"background_url" validate:"omitempty,url"`
}

type Assets struct {
	Dir            string        `mapstructure:"dir" validate:"required"`
	SweepOlderThan time.Duration `mapstructure:"sweep_older_than"`
}

type Delivery struct {
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxAttempts int           `mapstructure:"max_attempts" validate:"min=1,max=10"`
	BackoffBase time.Duration `mapstructure:"backoff_base"`
	BackoffMax  time.Duration `mapstructure:"backoff_max"`
}

type OTEL struct {
	Enable       bool    `mapstructure:"enable"`
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	ServiceName  string  `mapstructure:"service_name"`
	SampleRatio  float64 `mapstructure:"sample_ratio" validate:"gte=0,lte=1"`
}

type Server struct {
	MetricsAddr     string        `mapstructure:"metrics_addr" validate:"required"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Config struct {
	App      App            `mapstructure:"app"`
	Log      Log            `mapstructure:"log"`
	Discord  Discord        `mapstructure:"discord"`
	Source   Source         `mapstructure:"source"`
	In       KafkaIn        `mapstructure:"kafka_in"`
	Render   Render         `mapstructure:"render"`
	Card     Card           `mapstructure:"card"`
	Assets   Assets         `mapstructure:"assets"`
	Delivery Delivery       `mapstructure:"delivery"`
	DB       pginfra.Config `mapstructure:"db"`
	OTEL     OTEL           `mapstructure:"otel"`
	Server   Server         `mapstructure:"server"`
}

var validate = validator.New()

type ErrConfig string

func (e ErrConfig) Error() string { return string(e) }

const (
	ErrNoToken      = ErrConfig("discord.token is required")
	ErrNoChannel    = ErrConfig("discord.channel_id is required")
	ErrBadSource    = ErrConfig("source.kind must be discord or kafka")
	ErrBadSettle    = ErrConfig("render.settle_mode must be images or fixed")
	ErrNoKafkaTopic = ErrConfig("kafka_in.topic and kafka_in.brokers are required for the kafka source")
	ErrInvalid      = ErrConfig("invalid configuration")
)

func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return ErrNoToken
	}
	if c.Discord.ChannelID == "" {
		return ErrNoChannel
	}
	switch c.Source.Kind {
	case SourceDiscord:
	case SourceKafka:
		if c.In.Topic == "" || len(c.In.Brokers) == 0 {
			return ErrNoKafkaTopic
		}
	default:
		return ErrBadSource
	}
	if c.Render.SettleMode != SettleImages && c.Render.SettleMode != SettleFixed {
		return ErrBadSettle
	}
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return nil
}

func (lc *Log) AsLoggerConfig(app App) obs.LogConfig {
	return obs.LogConfig{
		Level:  lc.Level,
		Pretty: lc.Pretty,
		App:    app.Name,
		Env:    app.Env,
		Ver:    app.Version,
	}
}

func (oc *OTEL) AsOTELConfig() *obs.OTELConfig {
	return &obs.OTELConfig{
		Enable:      oc.Enable,
		Endpoint:    oc.OTLPEndpoint,
		ServiceName: oc.ServiceName,
		SampleRatio: oc.SampleRatio,
	}
}

func (k *KafkaIn) AsConsumerConfig() *kafkax.ConsumerConfig {
	return &kafkax.ConsumerConfig{
		Brokers:       k.Brokers,
		GroupID:       k.GroupID,
		Topic:         k.Topic,
		FromBeginning: k.FromBeginning,
	}
}

func (d *Delivery) AsRetryPolicy() retry.Policy {
	return retry.Policy{
		Name:     "delivery",
		Attempts: d.MaxAttempts,
		Backoff:  retry.ExpoJitter{Base: d.BackoffBase, Max: d.BackoffMax, Jitter: 0.2},
	}
}
