// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package wallet submits ChatPay payment transactions to the Sui blockchain.
package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/chatpay/chatpay-go/types"
	cpLog "github.com/chatpay/chatpay-go/util/log"
)

// Default deployment of the blockchainpayment module.
const (
	DefaultPackageID = "0x11b40daaa0068aa9bfa1ea493757cbb12fe6c25bc2094e287f25a3cd828e67d0"
	DefaultObjectID  = "0x6fb7883a8451f6054b7182396e7de8a4913bc09b5fbdcd279b2c0c7050a303f2"
	DefaultGasBudget = 10_000_000

	ModuleName          = "blockchainpayment"
	FuncCreateRequest   = "create_payment_request"
	FuncCompletePayment = "complete_crypto_payment"
	SUICoinType         = "0x2::sui::SUI"
)

// Bridge builds, signs and submits calls to the payment contract.
type Bridge struct {
	RPC       *RPC
	PackageID string
	ObjectID  string
	GasBudget uint64
	// USDCCoinType is the coin type used for USDC balances. Balance fails for USDC if unset.
	USDCCoinType string

	log cpLog.Logger
}

// NewBridge creates a bridge using the default contract deployment. The logger may be nil.
func NewBridge(rpc *RPC, log cpLog.Logger) *Bridge {
	if log == nil {
		log = cpLog.Noop
	}
	return &Bridge{
		RPC:       rpc,
		PackageID: DefaultPackageID,
		ObjectID:  DefaultObjectID,
		GasBudget: DefaultGasBudget,
		log:       log,
	}
}

// PaymentRequest is the input of CreatePaymentRequest.
type PaymentRequest struct {
	Receiver    string
	Amount      decimal.Decimal
	Currency    types.Currency
	Method      types.PaymentMethod
	Description string
	ChatID      string
	MessageID   string
	BankDetails string
}

// Receipt is the result of a successful contract call.
type Receipt struct {
	Digest string
	// Warning is set when the amount was accepted but is above the usual maximum.
	Warning string
}

// CreatePaymentRequest records a payment request on chain. The amount is converted to the
// smallest unit of the currency before the call is built.
func (b *Bridge) CreatePaymentRequest(ctx context.Context, signer Signer, req *PaymentRequest) (*Receipt, error) {
	if signer == nil {
		return nil, ErrWalletNotConnected
	}
	warning, err := ValidateAmount(req.Amount, req.Currency)
	if err != nil {
		return nil, err
	} else if warning != "" {
		b.log.Warnf("Creating payment request anyway: %s", warning)
	}
	method := req.Method
	if method == "" {
		method = types.PaymentMethodCrypto
	}
	call := &MoveCall{
		Sender:    signer.Address(),
		PackageID: b.PackageID,
		Module:    ModuleName,
		Function:  FuncCreateRequest,
		Arguments: []any{
			b.ObjectID,
			req.Receiver,
			ToBaseUnits(req.Amount, req.Currency).String(),
			string(req.Currency),
			string(method),
			req.Description,
			req.ChatID,
			req.MessageID,
			req.BankDetails,
		},
		GasBudget: b.GasBudget,
	}
	receipt, err := b.execute(ctx, signer, call)
	if err != nil {
		return nil, err
	}
	receipt.Warning = warning
	return receipt, nil
}

// CompletePayment marks an on-chain payment request as paid.
func (b *Bridge) CompletePayment(ctx context.Context, signer Signer, paymentID string) (*Receipt, error) {
	if signer == nil {
		return nil, ErrWalletNotConnected
	}
	return b.execute(ctx, signer, &MoveCall{
		Sender:    signer.Address(),
		PackageID: b.PackageID,
		Module:    ModuleName,
		Function:  FuncCompletePayment,
		Arguments: []any{b.ObjectID, paymentID},
		GasBudget: b.GasBudget,
	})
}

func (b *Bridge) execute(ctx context.Context, signer Signer, call *MoveCall) (*Receipt, error) {
	b.log.Debugf("Building %s for %s", call.Target(), call.Sender)
	txBytes, err := b.RPC.BuildMoveCall(ctx, call)
	if err != nil {
		return nil, classifyRPCError(err)
	}
	signature, err := signer.SignTransaction(ctx, txBytes)
	if err != nil {
		if errors.Is(err, ErrUserRejected) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrUserRejected, err)
	}
	resp, err := b.RPC.ExecuteTransactionBlock(ctx, txBytes, signature)
	if err != nil {
		return nil, classifyRPCError(err)
	} else if !resp.Succeeded() {
		reason := "no effects in response"
		if resp.Effects != nil {
			reason = resp.Effects.Status.Error
		}
		return nil, fmt.Errorf("%w: transaction %s: %s", ErrCallFailed, resp.Digest, reason)
	}
	b.log.Infof("Executed %s in transaction %s", call.Target(), resp.Digest)
	return &Receipt{Digest: resp.Digest}, nil
}

func classifyRPCError(err error) error {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return fmt.Errorf("%w: %w", ErrCallFailed, rpcErr)
	} else if errors.Is(err, ErrNetwork) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrCallFailed, err)
}

// Balance returns the balance of an address in display units.
func (b *Bridge) Balance(ctx context.Context, address string, currency types.Currency) (decimal.Decimal, error) {
	var coinType string
	switch currency {
	case types.CurrencySUI:
		coinType = SUICoinType
	case types.CurrencyUSDC:
		if b.USDCCoinType == "" {
			return decimal.Zero, fmt.Errorf("%w: USDC coin type not configured", ErrUnsupportedCurrency)
		}
		coinType = b.USDCCoinType
	default:
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
	balance, err := b.RPC.GetBalance(ctx, address, coinType)
	if err != nil {
		return decimal.Zero, err
	}
	total, err := decimal.NewFromString(balance.TotalBalance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q: %w", balance.TotalBalance, err)
	}
	return FromBaseUnits(total, currency), nil
}
