package welcomer_config

import (
	"strings"

	"github.com/spf13/viper"
)

func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if path != "" {
		v.SetConfigFile(path)
		_ = v.ReadInConfig()
	}

	v.SetDefault("app.name", "welcomer")
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.version", "")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("discord.token", "")
	v.SetDefault("discord.channel_id", "")
	v.SetDefault("discord.cdn_host", "cdn.discordapp.com")
	v.SetDefault("discord.request_timeout", "10s")

	v.SetDefault("source.kind", SourceDiscord)

	v.SetDefault("kafka_in.brokers", []string{"kafka:9092"})
	v.SetDefault("kafka_in.topic", "welcomer.membership")
	v.SetDefault("kafka_in.group_id", "welcomer")
	v.SetDefault("kafka_in.from_beginning", false)

	v.SetDefault("render.chrome_path", "")
	v.SetDefault("render.no_sandbox", false)
	v.SetDefault("render.width", 1100)
	v.SetDefault("render.height", 500)
	v.SetDefault("render.settle_mode", SettleImages)
	v.SetDefault("render.settle_delay", "2s")
	v.SetDefault("render.timeout", "30s")
	v.SetDefault("render.max_concurrent", 2)

	v.SetDefault("card.background_url", "https://i.imgur.com/CUAVXwI.png")

	v.SetDefault("assets.dir", "images")
	v.SetDefault("assets.sweep_older_than", "10m")

	v.SetDefault("delivery.timeout", "15s")
	v.SetDefault("delivery.max_attempts", 1)
	v.SetDefault("delivery.backoff_base", "500ms")
	v.SetDefault("delivery.backoff_max", "5s")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.max_conn_lifetime", "30m")
	v.SetDefault("db.max_conn_idle_time", "10m")
	v.SetDefault("db.health_check_period", "30s")
	v.SetDefault("db.query_timeout", "2s")

	v.SetDefault("otel.enable", false)
	v.SetDefault("otel.service_name", "welcomer")
	v.SetDefault("otel.sample_ratio", 1.0)
	v.SetDefault("otel.otlp_endpoint", "localhost:4317")

	v.SetDefault("server.metrics_addr", ":8085")
	v.SetDefault("server.graceful_timeout", "20s")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
