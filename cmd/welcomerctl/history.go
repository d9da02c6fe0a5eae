package main

import (
	"context"
	"errors"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	pg "github.com/NordCoder/Welcomer/internal/repository/postgres"
)

func newHistoryCommand() *cobra.Command {
	var (
		dsn   string
		limit int
	)
	cmd := &cobra.Command{
		Use:   "history [member-id]",
		Short: "List recent card deliveries for a member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if dsn == "" {
				return errors.New("--dsn or DB_DSN is required")
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 15*time.Second)
			defer cancel()

			db, err := pg.NewDB(ctx, pg.Config{URL: dsn, QueryTimeout: 5 * time.Second})
			if err != nil {
				return err
			}
			defer db.Close()

			rows, err := pg.NewDeliveryRepo(db).ListByMember(ctx, args[0], limit)
			if err != nil {
				return err
			}

			tw := table.NewWriter()
			tw.Style().Options.DrawBorder = false
			tw.Style().Options.SeparateColumns = false
			tw.Style().Options.SeparateHeader = false
			tw.AppendHeader(table.Row{"ID", "KIND", "STATUS", "STAGE", "RENDER", "CHANNEL", "AT", "ERROR"})
			for _, d := range rows {
				tw.AppendRow(table.Row{
					d.ID,
					d.Kind,
					d.Status,
					d.Stage,
					(time.Duration(d.RenderMillis) * time.Millisecond).String(),
					d.ChannelID,
					d.CreatedAt.Format(time.RFC3339),
					d.Error,
				})
			}
			cmd.Printf("%s\n", tw.Render())
			return nil
		},
	}
	cmd.Flags().StringVar(&dsn, "dsn", env("DB_DSN", ""), "postgres dsn")
	cmd.Flags().IntVar(&limit, "limit", 20, "max rows")
	return cmd
}
