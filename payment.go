// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatpay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay-go/api"
	"github.com/chatpay/chatpay-go/fiat"
	"github.com/chatpay/chatpay-go/metrics"
	"github.com/chatpay/chatpay-go/types"
	"github.com/chatpay/chatpay-go/types/events"
	"github.com/chatpay/chatpay-go/wallet"
)

// DrawerKind is the kind of payment drawer that is open.
type DrawerKind string

const (
	DrawerRequest DrawerKind = "request"
	DrawerSend    DrawerKind = "send"
	DrawerPaid    DrawerKind = "paid"
)

// PaymentForm is the content of the payment drawer.
type PaymentForm struct {
	Amount   string
	Currency types.Currency
	Method   types.PaymentMethod
	// Receiver is a wallet address for on-chain payments and free-form receiver details otherwise.
	Receiver    string
	Description string
	// ReferenceID is required when marking a payment as paid.
	ReferenceID string
}

// OpenDrawer opens the payment drawer for the selected chat.
func (cli *Client) OpenDrawer(kind DrawerKind) error {
	switch kind {
	case DrawerRequest, DrawerSend, DrawerPaid:
	default:
		return fmt.Errorf("%w %q", ErrUnknownDrawer, kind)
	}
	if !cli.IsAuthenticated() {
		return ErrNotLoggedIn
	}
	cli.chatLock.Lock()
	defer cli.chatLock.Unlock()
	if cli.selectedChat == "" {
		return ErrNoChatSelected
	}
	cli.drawerOpen = true
	cli.drawerKind = kind
	return nil
}

// CloseDrawer closes the payment drawer without submitting it.
func (cli *Client) CloseDrawer() {
	cli.chatLock.Lock()
	cli.drawerOpen = false
	cli.drawerKind = ""
	cli.chatLock.Unlock()
}

// Drawer returns the kind of the open payment drawer, and whether it's open at all.
func (cli *Client) Drawer() (DrawerKind, bool) {
	cli.chatLock.Lock()
	defer cli.chatLock.Unlock()
	return cli.drawerKind, cli.drawerOpen
}

// SubmitDrawer submits the open payment drawer.
//
// If anything fails, the error is returned and the drawer stays open. On success the drawer is
// closed and a payment message is appended to the selected chat. The payment is always marked
// unverified locally: only the chain or the backend can confirm it.
func (cli *Client) SubmitDrawer(ctx context.Context, form *PaymentForm) (*types.Message, error) {
	user := cli.User()
	if user == nil {
		return nil, ErrNotLoggedIn
	}
	if !cli.drawerBusy.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer cli.drawerBusy.Store(false)

	cli.chatLock.Lock()
	open, kind, chatID := cli.drawerOpen, cli.drawerKind, cli.selectedChat
	cli.chatLock.Unlock()
	if !open || chatID == "" {
		return nil, ErrDrawerClosed
	}

	payment, txID, route, err := cli.submitPayment(ctx, kind, chatID, user, form)
	if err != nil {
		cli.Log.Warnf("Failed to submit %s payment in %s: %v", kind, chatID, err)
		if route != "" {
			metrics.RecordPayment(route, false)
		}
		return nil, err
	}
	metrics.RecordPayment(route, true)
	msg := &types.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		SenderID:  user.ID,
		Content:   describePayment(kind, payment),
		Type:      types.MessageTypePayment,
		Timestamp: time.Now(),
		Payment:   payment,
	}

	cli.chatLock.Lock()
	if cli.selectedChat == chatID {
		cli.messages = append(cli.messages, msg)
		cli.drawerOpen = false
		cli.drawerKind = ""
	}
	if chat, ok := cli.chatsByID[chatID]; ok {
		chat.LastMessage = msg
	}
	cli.chatLock.Unlock()
	cli.Log.Infof("Submitted %s payment %s in %s via %s", kind, payment.ID, chatID, route)
	cli.dispatchEvent(&events.PaymentSubmitted{Message: msg, TransactionID: txID})
	return msg, nil
}

func parseAmount(input string) (decimal.Decimal, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return decimal.Zero, ErrMissingAmount
	}
	amount, err := decimal.NewFromString(input)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", wallet.ErrInvalidAmount, input)
	}
	return amount, nil
}

func (cli *Client) submitPayment(
	ctx context.Context, kind DrawerKind, chatID string, user *types.User, form *PaymentForm,
) (payment *types.Payment, txID, route string, err error) {
	if form == nil {
		return nil, "", "", ErrMissingAmount
	}
	amount, err := parseAmount(form.Amount)
	if err != nil {
		return
	}
	method := form.Method
	currency := form.Currency
	if kind == DrawerPaid && method == "" {
		method = types.PaymentMethodBank
	} else if method == "" {
		method = types.PaymentMethodCrypto
	}
	if currency == "" && method.IsOnChain() {
		currency = types.CurrencySUI
	} else if currency == "" {
		currency = types.CurrencyUSD
	}
	warning, err := wallet.ValidateAmount(amount, currency)
	if err != nil {
		return
	} else if warning != "" {
		cli.Log.Warnf("Submitting payment anyway: %s", warning)
	}
	payment = &types.Payment{
		ID:            uuid.NewString(),
		Type:          types.PaymentTypeRequest,
		Amount:        amount,
		Currency:      currency,
		PaymentMethod: method,
		Status:        types.PaymentStatusUnverified,
	}

	if kind == DrawerPaid {
		payment.Type = types.PaymentTypeManual
		payment.ReferenceID = strings.TrimSpace(form.ReferenceID)
		if payment.ReferenceID == "" {
			return nil, "", "", ErrMissingReference
		}
		return payment, payment.ReferenceID, "manual", nil
	}

	receiver := strings.TrimSpace(form.Receiver)
	if receiver == "" {
		return nil, "", "", ErrMissingReceiver
	}
	payment.ReceiverWallet = receiver

	switch {
	case method.IsOnChain():
		route = "wallet"
		if !currency.IsCrypto() {
			return nil, "", route, fmt.Errorf("%w: %s can't be paid on chain", wallet.ErrUnsupportedCurrency, currency)
		}
		var receipt *wallet.Receipt
		receipt, err = cli.Wallet.CreatePaymentRequest(ctx, cli.Signer(), &wallet.PaymentRequest{
			Receiver:    receiver,
			Amount:      amount,
			Currency:    currency,
			Method:      method,
			Description: form.Description,
			ChatID:      chatID,
		})
		if err != nil {
			return nil, "", route, err
		}
		payment.TxHash = receipt.Digest
		return payment, receipt.Digest, route, nil
	case method == types.PaymentMethodBank && cli.hasFiatProvider(currency):
		provider, _ := cli.Fiat.For(currency)
		route = "fiat:" + provider.Name()
		var result *fiat.Result
		result, err = provider.CreatePayment(ctx, &fiat.PaymentRequest{
			Amount:        amount,
			Currency:      currency,
			CustomerEmail: user.Email,
			CustomerName:  user.Name(),
			Description:   form.Description,
		})
		if err != nil {
			return nil, "", route, err
		}
		payment.ReferenceID = result.Reference
		if result.CheckoutURL != "" {
			cli.Log.Infof("Checkout page for %s: %s", result.Reference, result.CheckoutURL)
		}
		return payment, result.PaymentID, route, nil
	default:
		route = "backend"
		order := api.PaymentOrder{ChatID: chatID, Amount: amount, ReceiverWallet: receiver}
		var resp *api.PaymentResponse
		if kind == DrawerSend {
			resp, err = cli.API.SendPayment(ctx, order)
		} else {
			resp, err = cli.API.RequestPayment(ctx, order)
		}
		if err != nil {
			return nil, "", route, err
		}
		if resp.Payment != nil && resp.Payment.ID != "" {
			payment.ID = resp.Payment.ID
			payment.TxHash = resp.Payment.TxHash
			payment.ReferenceID = resp.Payment.ReferenceID
		}
		return payment, resp.TransactionID, route, nil
	}
}

func (cli *Client) hasFiatProvider(currency types.Currency) bool {
	_, err := cli.Fiat.For(currency)
	return err == nil
}

func describePayment(kind DrawerKind, payment *types.Payment) string {
	amount := fmt.Sprintf("%s %s", payment.Amount.String(), payment.Currency)
	switch kind {
	case DrawerSend:
		return "Sent " + amount
	case DrawerPaid:
		return fmt.Sprintf("Marked %s as paid (ref %s)", amount, payment.ReferenceID)
	default:
		return "Requested " + amount
	}
}

// CompletePayment pays an on-chain payment request with the connected wallet.
func (cli *Client) CompletePayment(ctx context.Context, paymentID string) (*wallet.Receipt, error) {
	receipt, err := cli.Wallet.CompletePayment(ctx, cli.Signer(), paymentID)
	metrics.RecordPayment("wallet_complete", err == nil)
	return receipt, err
}

// Balance returns the balance of the connected wallet.
func (cli *Client) Balance(ctx context.Context, currency types.Currency) (decimal.Decimal, error) {
	signer := cli.Signer()
	if signer == nil {
		return decimal.Zero, wallet.ErrWalletNotConnected
	}
	return cli.Wallet.Balance(ctx, signer.Address(), currency)
}

// VerifyFiatPayment asks the named provider whether a fiat payment went through.
func (cli *Client) VerifyFiatPayment(ctx context.Context, providerName, paymentID string) (*fiat.Result, error) {
	provider, err := cli.Fiat.ByName(providerName)
	if err != nil {
		return nil, err
	}
	result, err := provider.VerifyPayment(ctx, paymentID)
	if errors.Is(err, fiat.ErrVerificationFailed) {
		cli.Log.Warnf("%s payment %s is not verified: %v", providerName, paymentID, err)
	}
	return result, err
}
