package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"estatecollab/internal/syncagent"
)

// bellAlerter rings the terminal bell and prints the notification.
type bellAlerter struct{}

func (bellAlerter) Alert(n syncagent.Notification) {
	fmt.Fprintf(os.Stderr, "\a[%s] %s: %s\n", time.Now().Format("15:04:05"), n.Title, n.Message)
}

func watchCmd() *cobra.Command {
	var foreground bool
	var cooldown time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stay connected and report new events as they arrive",
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := viper.GetInt64("user-id")
			if userID <= 0 {
				return errors.New("user-id is required (--user-id or COLLABCTL_USER_ID)")
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			wsURL, err := c.WebSocketURL()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cache := syncagent.NewSessionCache()
			defer cache.Close()

			var lastUnread int64 = -1
			agent := syncagent.NewAgent(c, cache, bellAlerter{}, syncagent.Config{
				UserID:        userID,
				AlertCooldown: cooldown,
				OnChange: func(s syncagent.State) {
					if s.Unread == lastUnread {
						return
					}
					lastUnread = s.Unread
					latest := ""
					if len(s.Items) > 0 {
						latest = " latest: " + s.Items[0].Title
					}
					fmt.Printf("unread=%d%s\n", s.Unread, latest)
				},
			})
			agent.SetForeground(foreground)

			ch := syncagent.NewWSChannel(wsURL, syncagent.DefaultWSChannelConfig())
			agent.Attach(ctx, ch)
			if err := agent.Bootstrap(ctx); err != nil {
				return err
			}

			err = ch.Run(ctx)
			if errors.Is(err, ctx.Err()) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&foreground, "foreground", false, "print updates without ringing the bell")
	cmd.Flags().DurationVar(&cooldown, "cooldown", syncagent.DefaultAlertCooldown, "minimum time between bells")
	return cmd
}
