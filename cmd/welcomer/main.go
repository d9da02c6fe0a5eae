package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	config "github.com/NordCoder/Welcomer/internal/config/welcomer"
	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/obs"
	"github.com/NordCoder/Welcomer/internal/repository/chrome"
	"github.com/NordCoder/Welcomer/internal/repository/discord"
	"github.com/NordCoder/Welcomer/internal/repository/kafka"
	pg "github.com/NordCoder/Welcomer/internal/repository/postgres"
	"github.com/NordCoder/Welcomer/internal/services/welcomer"
)

var errGatewayDown = errors.New("discord gateway not ready")

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func wiring(cfg *config.Config, sess *discordgo.Session, assets *welcomer.AssetStore, store membership.DeliveryLog, l *zap.Logger) *welcomer.Handler {
	engine := chrome.NewEngine(chrome.Config{
		ExecPath:  cfg.Render.ChromePath,
		NoSandbox: cfg.Render.NoSandbox,
	}, l)
	renderer := welcomer.NewRenderer(engine, welcomer.RenderOptions{
		SettleMode:    welcomer.SettleMode(cfg.Render.SettleMode),
		SettleDelay:   cfg.Render.SettleDelay,
		Timeout:       cfg.Render.Timeout,
		MaxConcurrent: cfg.Render.MaxConcurrent,
	}, l)
	deliverer := welcomer.NewDeliverer(discord.NewResolver(sess), assets, systemClock{}, welcomer.DelivererConfig{
		ChannelID: cfg.Discord.ChannelID,
		Timeout:   cfg.Delivery.Timeout,
		Retry:     cfg.Delivery.AsRetryPolicy(),
	}, l)

	return &welcomer.Handler{
		Composer:  welcomer.NewComposer(cfg.Card.BackgroundURL, cfg.Render.Width, cfg.Render.Height),
		Assets:    assets,
		Renderer:  renderer,
		Deliverer: deliverer,
		Store:     store,
		Clock:     systemClock{},
		Log:       obs.Component(l, "welcomer.handler"),
	}
}

func configPath() string {
	if p := os.Getenv("WELCOMER_CONFIG"); p != "" {
		return p
	}
	return "config/welcomer.yaml"
}

func main() {
	// init
	_ = godotenv.Load()
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig(cfg.App))
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = l.Sync() }()
	zap.ReplaceGlobals(l)

	l.Info("starting welcomer",
		zap.String("source", cfg.Source.Kind),
		zap.String("channel_id", cfg.Discord.ChannelID),
		zap.String("assets_dir", cfg.Assets.Dir),
		zap.String("settle_mode", cfg.Render.SettleMode),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(rootCtx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Warn("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db (optional delivery log)
	var store membership.DeliveryLog = pg.NopDeliveryLog{}
	var db *pg.DB
	if cfg.DB.URL != "" {
		db, err = pg.NewDB(rootCtx, cfg.DB)
		if err != nil {
			l.Fatal("db connect", zap.Error(err))
		}
		defer db.Close()
		store = pg.NewDeliveryRepo(db)
		l.Info("db connected, delivery log enabled")
	}

	// discord
	sess, err := discord.NewSession(discord.Config{
		Token:          cfg.Discord.Token,
		RequestTimeout: cfg.Discord.RequestTimeout,
	})
	if err != nil {
		l.Fatal("discord session", zap.Error(err))
	}

	// assets
	assets := welcomer.NewAssetStore(cfg.Assets.Dir, l)
	if n, err := assets.Sweep(cfg.Assets.SweepOlderThan); err != nil {
		l.Warn("asset sweep", zap.Error(err))
	} else if n > 0 {
		l.Info("leftover cards removed", zap.Int("count", n))
	}

	handler := wiring(cfg, sess, assets, store, l)

	// metrics
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		if !sess.DataReady {
			return errGatewayDown
		}
		if db == nil {
			return nil
		}
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Ping(hctx)
	}, l)

	// gateway is needed for the channel state cache in both modes
	if cfg.Source.Kind == config.SourceDiscord {
		detach := discord.NewSource(cfg.Discord.CDNHost, handler, l).Attach(sess)
		defer detach()
	}
	if err := sess.Open(); err != nil {
		l.Fatal("discord gateway open", zap.Error(err))
	}
	l.Info("discord gateway connected")

	// start
	errCh := make(chan error, 1)
	if cfg.Source.Kind == config.SourceKafka {
		cons := kafka.BootstrapConsumer(rootCtx, cfg.In.AsConsumerConfig(), l).WithLogger(l)
		defer func() { _ = cons.Close() }()
		l.Info("kafka consumer initialized",
			zap.Strings("brokers", cfg.In.Brokers),
			zap.String("group_id", cfg.In.GroupID),
			zap.String("topic", cfg.In.Topic),
		)
		ctrl := &welcomer.Controller{Log: l, Sub: cons, UC: handler, CDNHost: cfg.Discord.CDNHost}
		go func() {
			l.Info("controller starting")
			errCh <- ctrl.Run(rootCtx)
		}()
	}

	// main loop
	select {
	case <-rootCtx.Done():
		l.Info("shutdown signal")
	case runErr := <-errCh:
		if runErr != nil && !errors.Is(runErr, context.Canceled) {
			l.Error("controller error", zap.Error(runErr))
		}
	}

	// stop taking events, then let in-flight cards finish
	if err := sess.Close(); err != nil {
		l.Warn("discord close", zap.Error(err))
	}
	waitCtx, cancelWait := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancelWait()
	if err := handler.Wait(waitCtx); err != nil {
		l.Warn("in-flight cards abandoned", zap.Int("live_assets", assets.Live()), zap.Error(err))
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
