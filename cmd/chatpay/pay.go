// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package main

import (
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/chatpay/chatpay-go"
	"github.com/chatpay/chatpay-go/types"
	"github.com/chatpay/chatpay-go/wallet"
)

// walletError replaces bridge errors with the message shown to users.
func walletError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr *wallet.RPCError
	if errors.As(err, &rpcErr) || errors.Is(err, wallet.ErrWalletNotConnected) ||
		errors.Is(err, wallet.ErrUserRejected) || errors.Is(err, wallet.ErrNetwork) ||
		errors.Is(err, wallet.ErrCallFailed) {
		return errors.New(wallet.UserMessage(err))
	}
	return err
}

func newPayCmd(a *app) *cobra.Command {
	var kind string
	var form chatpay.PaymentForm
	var currency, method string
	cmd := &cobra.Command{
		Use:   "pay <chat ID>",
		Short: "Request, send or mark a payment in a chat",
		Long: `Submit a payment in a chat.

Kinds:
  request  ask the other side for money
  send     send money
  paid     record a payment that was made elsewhere (requires --reference)

Payments with --method crypto or sui are signed with CHATPAY_WALLET_KEY.
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			if _, err := a.cli.LoadChats(ctx); err != nil {
				return err
			} else if err = a.cli.SelectChat(ctx, args[0]); err != nil {
				return err
			} else if err = a.cli.OpenDrawer(chatpay.DrawerKind(strings.ToLower(kind))); err != nil {
				return err
			}
			form.Currency = types.Currency(strings.ToUpper(currency))
			form.Method = types.PaymentMethod(strings.ToLower(method))
			msg, err := a.cli.SubmitDrawer(ctx, &form)
			if err != nil {
				return walletError(err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, msg.Content)
			if msg.Payment != nil && msg.Payment.TxHash != "" {
				fmt.Fprintf(out, "Transaction: %s\n", msg.Payment.TxHash)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(chatpay.DrawerRequest), "request, send or paid")
	cmd.Flags().StringVar(&form.Amount, "amount", "", "amount")
	cmd.Flags().StringVar(&currency, "currency", "", "currency (default SUI for on-chain, USD otherwise)")
	cmd.Flags().StringVar(&method, "method", "", "payment method: crypto, sui, bank, card or paypal")
	cmd.Flags().StringVar(&form.Receiver, "receiver", "", "receiver wallet address or payment details")
	cmd.Flags().StringVar(&form.ReferenceID, "reference", "", "reference of a payment made elsewhere")
	cmd.Flags().StringVar(&form.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("amount")

	cmd.AddCommand(newPayCompleteCmd(a), newPayVerifyCmd(a))
	return cmd
}

func newPayCompleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <payment ID>",
		Short: "Pay an on-chain payment request with the configured wallet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			receipt, err := a.cli.CompletePayment(cmd.Context(), args[0])
			if err != nil {
				return walletError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Paid, transaction %s\n", receipt.Digest)
			return nil
		},
	}
}

func newPayVerifyCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "verify <provider> <payment ID>",
		Short: "Check a fiat payment with its provider",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := a.cli.VerifyFiatPayment(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Payment %s (ref %s) was successful\n", result.PaymentID, result.Reference)
			return nil
		},
	}
}

func newPaymentsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "payments",
		Short: "Show the payment history",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if err := a.requireSession(ctx); err != nil {
				return err
			}
			records, err := a.cli.PaymentHistory(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tDATE\tTYPE\tAMOUNT\tSTATUS\tDESCRIPTION")
			for _, rec := range records {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s %s\t%s\t%s\n",
					rec.ID, rec.Timestamp.Local().Format("2006-01-02"), rec.Type,
					rec.Amount, rec.Currency, rec.Status, rec.Description)
			}
			return tw.Flush()
		},
	}
}

func newBalanceCmd(a *app) *cobra.Command {
	var currency, address string
	cmd := &cobra.Command{
		Use:   "balance",
		Short: "Show the on-chain balance of the configured wallet",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cur := types.Currency(strings.ToUpper(currency))
			if address == "" {
				balance, err := a.cli.Balance(ctx, cur)
				if err != nil {
					return walletError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", balance, cur)
				return nil
			}
			balance, err := a.cli.Wallet.Balance(ctx, address, cur)
			if err != nil {
				return walletError(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", balance, cur)
			return nil
		},
	}
	cmd.Flags().StringVar(&currency, "currency", string(types.CurrencySUI), "SUI or USDC")
	cmd.Flags().StringVar(&address, "address", "", "check another address instead of the configured wallet")
	return cmd
}
