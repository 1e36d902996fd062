// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Command chatpay is a command-line client for ChatPay.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/chatpay/chatpay-go"
	"github.com/chatpay/chatpay-go/config"
	"github.com/chatpay/chatpay-go/store"
	"github.com/chatpay/chatpay-go/store/sqlstore"
	cpLog "github.com/chatpay/chatpay-go/util/log"
	"github.com/chatpay/chatpay-go/wallet"
)

type app struct {
	cfg *config.Config
	log cpLog.Logger
	cli *chatpay.Client
	db  *sqlstore.Container

	verbose   bool
	envFiles  []string
	profileID string
}

func newRootCmd(a *app) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "chatpay",
		Short:         "ChatPay command-line client",
		Long:          "Chat and send payments on ChatPay from the terminal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringSliceVar(&a.envFiles, "env-file", config.DefaultEnvFiles, ".env files to load")
	rootCmd.PersistentFlags().StringVar(&a.profileID, "profile", "", "session profile name (default from CHATPAY_PROFILE)")

	rootCmd.AddCommand(newRegisterCmd(a))
	rootCmd.AddCommand(newLoginCmd(a))
	rootCmd.AddCommand(newLogoutCmd(a))
	rootCmd.AddCommand(newWhoamiCmd(a))
	rootCmd.AddCommand(newProfileCmd(a))
	rootCmd.AddCommand(newChatsCmd(a))
	rootCmd.AddCommand(newMessagesCmd(a))
	rootCmd.AddCommand(newSendCmd(a))
	rootCmd.AddCommand(newContactsCmd(a))
	rootCmd.AddCommand(newListenCmd(a))
	rootCmd.AddCommand(newPayCmd(a))
	rootCmd.AddCommand(newPaymentsCmd(a))
	rootCmd.AddCommand(newBalanceCmd(a))
	rootCmd.AddCommand(newStatusCmd(a))
	return rootCmd
}

func (a *app) newLogger(level string) cpLog.Logger {
	if a.verbose {
		level = cpLog.DebugLevel
	}
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	return cpLog.Zerolog(zerolog.New(output).Level(cpLog.ParseLevel(level)).With().Timestamp().Logger())
}

func (a *app) setup(ctx context.Context) error {
	bootLog := a.newLogger(cpLog.InfoLevel)
	config.LoadEnv(bootLog.Sub("Config"), a.envFiles...)
	a.cfg = config.FromEnv()
	if a.profileID != "" {
		a.cfg.Profile = a.profileID
	}
	a.log = a.newLogger(a.cfg.LogLevel)

	sessionStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	a.cli = chatpay.NewClient(a.cfg, sessionStore, a.log.Sub("Client"))
	if err = a.cli.SetProxyAddress(a.cfg.Proxy); err != nil {
		return fmt.Errorf("invalid proxy: %w", err)
	}
	if a.cfg.WalletKey != "" {
		signer, err := wallet.ParseKeypairSigner(a.cfg.WalletKey)
		if err != nil {
			return fmt.Errorf("invalid wallet key: %w", err)
		}
		a.cli.SetSigner(signer)
		a.log.Debugf("Using wallet %s", signer.Address())
	}
	return nil
}

func (a *app) openStore(ctx context.Context) (store.SessionStore, error) {
	if a.cfg.DatabaseURL != "" {
		db, err := sqlstore.New(ctx, a.cfg.DatabaseURL, a.cfg.Profile, a.log.Sub("Database"))
		if err != nil {
			return nil, fmt.Errorf("failed to open session database: %w", err)
		}
		a.db = db
		return db, nil
	}
	path := a.cfg.StateFile
	if path == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return nil, fmt.Errorf("failed to find config directory: %w", err)
		}
		path = filepath.Join(dir, "chatpay", a.cfg.Profile+".json")
	}
	return store.NewFileStore(path), nil
}

// close releases whatever setup opened. It runs after every command,
// including ones that failed, since cobra skips post-run hooks on error.
func (a *app) close() {
	if a.cli != nil {
		a.cli.Stop()
	}
	if a.db != nil {
		a.db.Close()
		a.db = nil
	}
}

// requireSession restores the stored session and fails if there isn't one.
func (a *app) requireSession(ctx context.Context) error {
	if err := a.cli.Init(ctx); err != nil {
		return err
	}
	if !a.cli.IsAuthenticated() {
		return fmt.Errorf("not logged in, run 'chatpay login' first")
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
