// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/chatpay/chatpay-go/api"
	"github.com/chatpay/chatpay-go/metrics"
	"github.com/chatpay/chatpay-go/types"
	"github.com/chatpay/chatpay-go/types/events"
)

func formatMessage(msg *types.Message) string {
	ts := msg.Timestamp.Local().Format("2006-01-02 15:04")
	if msg.Payment != nil {
		status := msg.Payment.Status
		if status == types.PaymentStatusNone {
			status = "pending"
		}
		return fmt.Sprintf("[%s] %s: %s [%s %s %s, %s]", ts, msg.SenderID, msg.Content,
			msg.Payment.Type, msg.Payment.Amount, msg.Payment.Currency, status)
	}
	return fmt.Sprintf("[%s] %s: %s", ts, msg.SenderID, msg.Content)
}

func printChats(out io.Writer, chats []*types.Chat) {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST MESSAGE")
	for _, chat := range chats {
		var last string
		if chat.LastMessage != nil {
			last = chat.LastMessage.Content
			if len(last) > 40 {
				last = last[:37] + "..."
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", chat.ID, chat.Name, chat.UnreadCount, last)
	}
	_ = tw.Flush()
}

func newChatsCmd(a *app) *cobra.Command {
	var participants []string
	var group bool
	cmd := &cobra.Command{
		Use:   "chats",
		Short: "List chats, or create one with --with",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if len(participants) > 0 {
				chatType := types.ChatTypeDirect
				if group {
					chatType = types.ChatTypeGroup
				}
				chat, err := a.cli.CreateChat(ctx, participants, chatType)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Created chat %s\n", chat.ID)
				return nil
			}
			chats, err := a.cli.LoadChats(ctx)
			if err != nil {
				return err
			}
			printChats(cmd.OutOrStdout(), chats)
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&participants, "with", nil, "create a chat with these user IDs")
	cmd.Flags().BoolVar(&group, "group", false, "create a group chat")
	return cmd
}

func newMessagesCmd(a *app) *cobra.Command {
	var limit, skip int
	cmd := &cobra.Command{
		Use:   "messages <chat ID>",
		Short: "Show the message history of a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			msgs, err := a.cli.API.GetChatMessages(ctx, args[0], limit, skip)
			if err != nil {
				return err
			}
			for _, msg := range msgs {
				fmt.Fprintln(cmd.OutOrStdout(), formatMessage(msg))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", api.DefaultHistoryLimit, "number of messages")
	cmd.Flags().IntVar(&skip, "skip", 0, "number of newest messages to skip")
	return cmd
}

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <chat ID> <message...>",
		Short: "Send a text message",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			msg, err := a.cli.SendMessageTo(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			} else if msg != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "Sent %s\n", msg.ID)
			}
			return nil
		},
	}
}

func newContactsCmd(a *app) *cobra.Command {
	var add string
	cmd := &cobra.Command{
		Use:   "contacts",
		Short: "List contacts, or add one with --add",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if add != "" {
				contact, err := a.cli.AddContact(ctx, add)
				if err != nil {
					return err
				} else if contact != nil {
					fmt.Fprintf(cmd.OutOrStdout(), "Added %s\n", contact.Username)
				}
				return nil
			}
			contacts, err := a.cli.Contacts(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tUSERNAME\tNAME\tWALLET")
			for _, contact := range contacts {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", contact.ID, contact.Username, contact.DisplayName, contact.WalletAddress)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&add, "add", "", "user ID to add")
	return cmd
}

func newListenCmd(a *app) *cobra.Command {
	var listenAddr string
	cmd := &cobra.Command{
		Use:   "listen [chat ID]",
		Short: "Print realtime events until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			a.cli.AddEventHandler(func(rawEvt any) {
				switch evt := rawEvt.(type) {
				case *events.Connected:
					fmt.Fprintln(out, "* connected")
				case *events.Disconnected:
					fmt.Fprintf(out, "* disconnected: %v\n", evt.Err)
				case *events.Reconnecting:
					fmt.Fprintf(out, "* reconnecting (attempt %d)\n", evt.Attempt)
				case *events.ReconnectFailed:
					fmt.Fprintf(out, "* gave up reconnecting after %d attempts: %v\n", evt.Attempts, evt.Err)
				case *events.Message:
					fmt.Fprintf(out, "%s %s\n", evt.Message.ChatID, formatMessage(evt.Message))
				case *events.UserTyping:
					fmt.Fprintf(out, "* %s is typing in %s\n", evt.UserID, evt.ChatID)
				case *events.PaymentNotification:
					fmt.Fprintf(out, "* payment %s is now %s\n", evt.Payment.ID, evt.Payment.Status)
				case *events.UnreadChanged:
					if evt.UnreadCount > 0 {
						fmt.Fprintf(out, "* %d unread in %s\n", evt.UnreadCount, evt.ChatID)
					}
				case *events.LoggedOut:
					fmt.Fprintln(out, "* logged out")
				}
			})
			if err := a.cli.Start(ctx); err != nil {
				return err
			}
			if len(args) > 0 {
				if err := a.cli.SelectChat(ctx, args[0]); err != nil {
					return err
				}
				for _, msg := range a.cli.Messages() {
					fmt.Fprintln(out, formatMessage(msg))
				}
			} else {
				printChats(out, a.cli.Chats())
			}
			if listenAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", metrics.Handler())
				mux.Handle("/health", a.newMonitor().HTTPHandler())
				srv := &http.Server{Addr: listenAddr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.log.Errorf("Metrics server failed: %v", err)
					}
				}()
				defer srv.Close()
			}
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&listenAddr, "listen", "", "serve /metrics and /health on this address")
	return cmd
}
