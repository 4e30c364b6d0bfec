package main

import (
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func notificationsCmd() *cobra.Command {
	n := &cobra.Command{Use: "notifications", Aliases: []string{"notif"}, Short: "Read and acknowledge notifications"}
	n.AddCommand(notificationsListCmd())
	n.AddCommand(notificationsCountCmd())
	n.AddCommand(notificationsReadCmd())
	n.AddCommand(notificationsReadAllCmd())
	return n
}

func notificationsListCmd() *cobra.Command {
	var cursor string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List notifications, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			page, err := c.ListNotifications(cmd.Context(), cursor, limit)
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(page)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"ID", "Type", "Title", "Read", "Created"})
			for _, n := range page.Notifications {
				read := ""
				if n.Read {
					read = "yes"
				}
				tw.AppendRow(table.Row{n.ID, n.Type, n.Title, read, n.CreatedAt})
			}
			tw.AppendFooter(table.Row{"", "", fmt.Sprintf("unread: %d", page.UnreadCount), "", ""})
			tw.Render()
			if page.HasMore {
				fmt.Printf("more: --cursor %s\n", page.NextCursor)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue after this cursor")
	cmd.Flags().IntVar(&limit, "limit", 20, "page size")
	return cmd
}

func notificationsCountCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "count",
		Short: "Show the unread count",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			n, err := c.UnreadCount(cmd.Context())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]int64{"unread_count": n})
			}
			fmt.Println(n)
			return nil
		},
	}
}

func notificationsReadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read <id>",
		Short: "Mark one notification as read",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			return c.MarkRead(cmd.Context(), args[0])
		},
	}
}

func notificationsReadAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-all",
		Short: "Mark every notification as read",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			n, err := c.MarkAllRead(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Printf("marked %d as read\n", n)
			return nil
		},
	}
}
