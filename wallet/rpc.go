// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package wallet

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	cpLog "github.com/chatpay/chatpay-go/util/log"
)

// Network is a Sui network name.
type Network string

const (
	Mainnet  Network = "mainnet"
	Testnet  Network = "testnet"
	Devnet   Network = "devnet"
	Localnet Network = "localnet"
)

// FullnodeURL returns the public fullnode JSON-RPC endpoint of a network.
func FullnodeURL(network Network) string {
	switch network {
	case Localnet:
		return "http://127.0.0.1:9000"
	case Mainnet, Devnet:
		return fmt.Sprintf("https://fullnode.%s.sui.io:443", network)
	default:
		return "https://fullnode.testnet.sui.io:443"
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      uint64 `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPC is a minimal Sui JSON-RPC client.
type RPC struct {
	URL  string
	HTTP *http.Client

	log    cpLog.Logger
	nextID atomic.Uint64
}

// NewRPC creates a client for the given fullnode URL. The logger may be nil.
func NewRPC(url string, log cpLog.Logger) *RPC {
	if log == nil {
		log = cpLog.Noop
	}
	return &RPC{
		URL:  url,
		HTTP: &http.Client{Timeout: 30 * time.Second},
		log:  log,
	}
}

// Call invokes a JSON-RPC method and decodes the result into result, which may be nil.
// Transport failures wrap ErrNetwork, error objects are returned as *RPCError.
func (rpc *RPC) Call(ctx context.Context, method string, result any, params ...any) error {
	if params == nil {
		params = []any{}
	}
	body, err := json.Marshal(&rpcRequest{
		JSONRPC: "2.0",
		ID:      rpc.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal %s request: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rpc.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to prepare %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	rpc.log.Debugf("Calling %s", method)
	resp, err := rpc.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrNetwork, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: failed to read %s response: %w", ErrNetwork, method, err)
	} else if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: fullnode returned HTTP %d", ErrNetwork, resp.StatusCode)
	}
	var rpcResp rpcResponse
	if err = json.Unmarshal(data, &rpcResp); err != nil {
		return fmt.Errorf("%w: failed to decode %s response (HTTP %d): %w", ErrNetwork, method, resp.StatusCode, err)
	} else if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil {
		if err = json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("failed to decode %s result: %w", method, err)
		}
	}
	return nil
}

// Balance is the result of suix_getBalance.
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

// GetBalance returns the total balance of a coin type owned by an address. An empty coin
// type means SUI.
func (rpc *RPC) GetBalance(ctx context.Context, owner, coinType string) (*Balance, error) {
	params := []any{owner}
	if coinType != "" {
		params = append(params, coinType)
	}
	var balance Balance
	if err := rpc.Call(ctx, "suix_getBalance", &balance, params...); err != nil {
		return nil, err
	}
	return &balance, nil
}

// MoveCall describes a Move function call to build into a transaction.
type MoveCall struct {
	Sender        string
	PackageID     string
	Module        string
	Function      string
	TypeArguments []string
	Arguments     []any
	GasBudget     uint64
}

// Target returns the package::module::function string of the call.
func (mc *MoveCall) Target() string {
	return fmt.Sprintf("%s::%s::%s", mc.PackageID, mc.Module, mc.Function)
}

// BuildMoveCall asks the fullnode to build a transaction for the call and returns the BCS
// transaction bytes to sign. Gas coins are selected by the node.
func (rpc *RPC) BuildMoveCall(ctx context.Context, call *MoveCall) ([]byte, error) {
	typeArgs := call.TypeArguments
	if typeArgs == nil {
		typeArgs = []string{}
	}
	var result struct {
		TxBytes string `json:"txBytes"`
	}
	err := rpc.Call(ctx, "unsafe_moveCall", &result,
		call.Sender,
		call.PackageID,
		call.Module,
		call.Function,
		typeArgs,
		call.Arguments,
		nil,
		strconv.FormatUint(call.GasBudget, 10),
	)
	if err != nil {
		return nil, err
	}
	txBytes, err := base64.StdEncoding.DecodeString(result.TxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction bytes: %w", err)
	}
	return txBytes, nil
}

// TransactionResponse is the subset of sui_executeTransactionBlock output used here.
type TransactionResponse struct {
	Digest  string `json:"digest"`
	Effects *struct {
		Status struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		} `json:"status"`
	} `json:"effects,omitempty"`
}

// Succeeded returns true if the effects report success.
func (tr *TransactionResponse) Succeeded() bool {
	return tr.Effects != nil && tr.Effects.Status.Status == "success"
}

// ExecuteTransactionBlock submits signed transaction bytes and waits for local execution.
func (rpc *RPC) ExecuteTransactionBlock(ctx context.Context, txBytes []byte, signature string) (*TransactionResponse, error) {
	var result TransactionResponse
	err := rpc.Call(ctx, "sui_executeTransactionBlock", &result,
		base64.StdEncoding.EncodeToString(txBytes),
		[]string{signature},
		map[string]bool{"showEffects": true},
		"WaitForLocalExecution",
	)
	if err != nil {
		return nil, err
	}
	return &result, nil
}
