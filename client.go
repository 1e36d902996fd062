// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package chatpay implements a client for the ChatPay chat and payments service.
package chatpay

import (
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/chatpay/chatpay-go/api"
	"github.com/chatpay/chatpay-go/config"
	"github.com/chatpay/chatpay-go/fiat"
	"github.com/chatpay/chatpay-go/realtime"
	"github.com/chatpay/chatpay-go/store"
	"github.com/chatpay/chatpay-go/types"
	cpLog "github.com/chatpay/chatpay-go/util/log"
	"github.com/chatpay/chatpay-go/wallet"
)

// EventHandler is a function that can handle events from ChatPay.
type EventHandler func(evt any)

type wrappedEventHandler struct {
	fn EventHandler
	id uint32
}

var nextHandlerID uint32

// Client contains everything necessary to use ChatPay as a single user.
type Client struct {
	Store    store.SessionStore
	API      *api.Client
	Realtime realtime.Channel
	Wallet   *wallet.Bridge
	Fiat     fiat.Providers
	Log      cpLog.Logger

	signer     wallet.Signer
	signerLock sync.RWMutex

	// sessionLock guards the onboarding state below.
	sessionLock sync.RWMutex
	user        *types.User
	view        types.OnboardingView
	actionBusy  atomic.Bool

	// chatLock guards the chat state below.
	chatLock       sync.Mutex
	chats          []*types.Chat
	chatsByID      map[string]*types.Chat
	selectedChat   string
	messages       []*types.Message
	fetchSeq       uint64
	fetchCancel    func()
	realtimeHandle uint32
	drawerOpen     bool
	drawerKind     DrawerKind
	drawerBusy     atomic.Bool

	eventHandlers     []wrappedEventHandler
	eventHandlersLock sync.RWMutex
}

// NewClient initializes a new ChatPay client from the given config.
//
// The session store holds the auth token between runs. It can be nil, in which case the token
// is only kept in memory. The logger can also be nil to disable logging.
//
//	cfg := config.Load(nil)
//	cli := chatpay.NewClient(cfg, store.NewFileStore("chatpay.json"), cpLog.Stdout("Client", "INFO", true))
func NewClient(cfg *config.Config, sessionStore store.SessionStore, log cpLog.Logger) *Client {
	if cfg == nil {
		cfg = &config.Config{}
	}
	if log == nil {
		log = cpLog.Noop
	}
	if sessionStore == nil {
		sessionStore = store.NewMemoryStore()
	}
	apiClient := api.NewClient(cfg.APIURL, sessionStore, log.Sub("API"))
	conn := realtime.NewConn(cfg.WSURL, log.Sub("Realtime"))
	if cfg.ReconnectAttempts > 0 {
		conn.Policy = cfg.ReconnectPolicy()
	}
	rpcURL := cfg.SuiRPCURL
	if rpcURL == "" {
		rpcURL = wallet.FullnodeURL(cfg.SuiNetwork)
	}
	bridge := wallet.NewBridge(wallet.NewRPC(rpcURL, log.Sub("RPC")), log.Sub("Wallet"))
	if cfg.PackageID != "" {
		bridge.PackageID = cfg.PackageID
	}
	if cfg.ObjectID != "" {
		bridge.ObjectID = cfg.ObjectID
	}
	if cfg.GasBudget > 0 {
		bridge.GasBudget = cfg.GasBudget
	}
	bridge.USDCCoinType = cfg.USDCCoinType

	var providers fiat.Providers
	if cfg.FlutterwaveKey != "" {
		providers = append(providers, fiat.NewFlutterwave(cfg.FlutterwaveKey))
	}
	if cfg.PaystackKey != "" {
		providers = append(providers, fiat.NewPaystack(cfg.PaystackKey))
	}

	cli := &Client{
		Store:     sessionStore,
		API:       apiClient,
		Realtime:  conn,
		Wallet:    bridge,
		Fiat:      providers,
		Log:       log,
		view:      types.ViewLanding,
		chatsByID: make(map[string]*types.Chat),
	}
	apiClient.SetUnauthenticatedHandler(cli.handleUnauthenticated)
	return cli
}

// SetSigner connects a wallet account to the client. Passing nil disconnects the wallet.
func (cli *Client) SetSigner(signer wallet.Signer) {
	cli.signerLock.Lock()
	cli.signer = signer
	cli.signerLock.Unlock()
}

// Signer returns the connected wallet account, or nil if no wallet is connected.
func (cli *Client) Signer() wallet.Signer {
	cli.signerLock.RLock()
	defer cli.signerLock.RUnlock()
	return cli.signer
}

// IsConnected checks if the realtime channel is open.
func (cli *Client) IsConnected() bool {
	return cli != nil && cli.Realtime != nil && cli.Realtime.IsConnected()
}

// AddEventHandler registers a new function to receive all events emitted by this client.
//
// The returned integer is the event handler ID, which can be passed to RemoveEventHandler to remove it.
//
// All registered event handlers will receive all events. You should use a type switch statement to
// filter the events you want:
//
//	func myEventHandler(evt any) {
//		switch v := evt.(type) {
//		case *events.Message:
//			fmt.Println("Received a message!")
//		case *events.UnreadChanged:
//			fmt.Println("Unread count changed:", v.ChatID, v.UnreadCount)
//		}
//	}
//
// Events from the realtime channel are forwarded after the client has applied them to its own
// state, so handlers see the updated chat list and messages.
func (cli *Client) AddEventHandler(handler EventHandler) uint32 {
	nextID := atomic.AddUint32(&nextHandlerID, 1)
	cli.eventHandlersLock.Lock()
	cli.eventHandlers = append(cli.eventHandlers, wrappedEventHandler{handler, nextID})
	cli.eventHandlersLock.Unlock()
	return nextID
}

// RemoveEventHandler removes a previously registered event handler function.
// If the function with the given ID is found, this returns true.
func (cli *Client) RemoveEventHandler(id uint32) bool {
	cli.eventHandlersLock.Lock()
	defer cli.eventHandlersLock.Unlock()
	for index := range cli.eventHandlers {
		if cli.eventHandlers[index].id == id {
			if index == 0 {
				cli.eventHandlers[0].fn = nil
				cli.eventHandlers = cli.eventHandlers[1:]
				return true
			} else if index < len(cli.eventHandlers)-1 {
				copy(cli.eventHandlers[index:], cli.eventHandlers[index+1:])
			}
			cli.eventHandlers[len(cli.eventHandlers)-1].fn = nil
			cli.eventHandlers = cli.eventHandlers[:len(cli.eventHandlers)-1]
			return true
		}
	}
	return false
}

// RemoveEventHandlers removes all event handlers that have been registered with AddEventHandler
func (cli *Client) RemoveEventHandlers() {
	cli.eventHandlersLock.Lock()
	cli.eventHandlers = make([]wrappedEventHandler, 0, 1)
	cli.eventHandlersLock.Unlock()
}

func (cli *Client) dispatchEvent(evt any) {
	cli.eventHandlersLock.RLock()
	defer func() {
		cli.eventHandlersLock.RUnlock()
		err := recover()
		if err != nil {
			cli.Log.Errorf("Event handler panicked while handling a %T: %v\n%s", evt, err, debug.Stack())
		}
	}()
	for _, handler := range cli.eventHandlers {
		handler.fn(evt)
	}
}
