// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatpay/chatpay-go/health"
)

func (a *app) newMonitor() *health.Monitor {
	monitor := health.NewMonitor(a.log.Sub("Health"))
	monitor.AddChecker(health.NewClientChecker(a.cli, a.cli.Realtime, "client"))
	monitor.AddChecker(health.NewFuncChecker("api", func(ctx context.Context) error {
		_, err := a.cli.API.GetProfile(ctx)
		return err
	}))
	monitor.AddChecker(health.NewFuncChecker("sui-rpc", func(ctx context.Context) error {
		var checkpoint string
		return a.cli.Wallet.RPC.Call(ctx, "sui_getLatestCheckpointSequenceNumber", &checkpoint)
	}))
	if a.db != nil {
		monitor.AddChecker(health.NewDatabaseChecker(a.db.Pool(), "database"))
	}
	return monitor
}

func printReport(out io.Writer, report health.Report) {
	fmt.Fprintf(out, "Overall: %s\n", report.Status)
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	for _, name := range report.Names() {
		component := report.Components[name]
		fmt.Fprintf(tw, "%s\t%s\t%s\n", name, component.Status, component.Message)
	}
	_ = tw.Flush()
}

func newStatusCmd(a *app) *cobra.Command {
	var connect bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check the backend, realtime connection, Sui node and session database",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.cli.Init(ctx); err != nil {
				a.log.Warnf("Failed to restore session: %v", err)
			}
			if connect && a.cli.IsAuthenticated() {
				if err := a.cli.Start(ctx); err != nil {
					a.log.Warnf("Failed to connect: %v", err)
				}
			}
			report := a.newMonitor().Check(ctx)
			printReport(cmd.OutOrStdout(), report)
			if report.Status == health.StatusUnhealthy {
				return fmt.Errorf("unhealthy")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&connect, "connect", true, "open the realtime connection before checking")
	return cmd
}
