package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/NordCoder/Welcomer/internal/domain/membership"
	"github.com/NordCoder/Welcomer/internal/repository/chrome"
	"github.com/NordCoder/Welcomer/internal/services/welcomer"
)

func newPreviewCommand() *cobra.Command {
	var (
		kind, member, name, avatar, background, out, chromePath string
		noSandbox                                               bool
		settle                                                  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Render a card to a local PNG without posting it",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := membership.ParseKind(kind)
			if err != nil {
				return err
			}
			if avatar == "" {
				avatar = membership.AvatarURL("", member, "")
			}

			doc, err := welcomer.NewComposer(background, 0, 0).Compose(k, name, avatar)
			if err != nil {
				return err
			}

			engine := chrome.NewEngine(chrome.Config{ExecPath: chromePath, NoSandbox: noSandbox}, logger)
			r := welcomer.NewRenderer(engine, welcomer.RenderOptions{SettleDelay: settle, MaxConcurrent: 1}, logger)

			ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
			defer cancel()
			art, err := r.Render(ctx, doc, membership.Artifact{MemberID: member, Key: member, Path: out})
			if err != nil {
				return err
			}
			logger.Info("preview written", zap.String("path", art.Path), zap.Int("width", art.Width), zap.Int("height", art.Height))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&kind, "kind", "join", "join or leave")
	f.StringVar(&member, "member", "0", "member id, picks the default avatar when --avatar-url is empty")
	f.StringVar(&name, "name", "Preview", "display name")
	f.StringVar(&avatar, "avatar-url", "", "avatar url")
	f.StringVar(&background, "background", "", "background image url")
	f.StringVarP(&out, "out", "o", "preview.png", "output file")
	f.StringVar(&chromePath, "chrome-path", env("RENDER_CHROME_PATH", ""), "chrome executable")
	f.BoolVar(&noSandbox, "no-sandbox", false, "run chrome without sandbox")
	f.DurationVar(&settle, "settle", 2*time.Second, "upper bound on waiting for images")
	return cmd
}
