package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/repository/kafka"
)

func newEmitCommand() *cobra.Command {
	var (
		brokers, topic string
		msg            kafka.MembershipMessage
	)
	cmd := &cobra.Command{
		Use:   "emit",
		Short: "Publish one membership event to the bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := membership.ParseKind(msg.Kind)
			if err != nil {
				return err
			}
			if msg.MemberID == "" {
				return errors.New("--member is required")
			}
			msg.Kind = string(k)

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			bs := strings.Split(brokers, ",")
			if err := kafka.EnsureTopic(ctx, bs, kafka.TopicSpec{Name: topic}, logger); err != nil {
				logger.Warn("ensure topic", zap.Error(err))
			}

			p := kafka.NewProducer(bs, topic).WithLogger(logger)
			defer func() { _ = p.Close() }()

			if err := kafka.NewMembershipEventsKafka(p).Publish(ctx, msg); err != nil {
				return err
			}
			logger.Info("membership event published",
				zap.String("topic", topic),
				zap.String("kind", msg.Kind),
				zap.String("member_id", msg.MemberID),
			)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&brokers, "brokers", env("KAFKA_BROKERS", "127.0.0.1:19092"), "comma separated broker list")
	f.StringVar(&topic, "topic", env("KAFKA_TOPIC", "welcomer.membership"), "membership topic")
	f.StringVar(&msg.Kind, "kind", "join", "join or leave")
	f.StringVar(&msg.MemberID, "member", "", "member id")
	f.StringVar(&msg.GuildID, "guild", "", "guild id")
	f.StringVar(&msg.DisplayName, "name", "", "display name")
	f.StringVar(&msg.AvatarHash, "avatar-hash", "", "avatar hash on the CDN")
	f.StringVar(&msg.AvatarURL, "avatar-url", "", "full avatar url, overrides --avatar-hash")
	return cmd
}
