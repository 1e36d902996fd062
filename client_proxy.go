// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chatpay

import (
	"fmt"
	"net/http"
	"net/url"

	"golang.org/x/net/proxy"

	"github.com/chatpay/chatpay-go/realtime"
)

// Proxy is a function that selects the proxy for a HTTP request, like http.ProxyFromEnvironment.
type Proxy = func(*http.Request) (*url.URL, error)

// SetProxyAddress is a helper method that parses a URL string and calls SetProxy or SetSOCKSProxy
// based on the URL scheme. An empty address removes the proxy.
//
// Returns an error if url.Parse fails or if the scheme isn't http, https or socks5.
func (cli *Client) SetProxyAddress(addr string) error {
	if addr == "" {
		cli.SetProxy(nil)
		return nil
	}
	parsed, err := url.Parse(addr)
	if err != nil {
		return err
	}
	switch parsed.Scheme {
	case "http", "https":
		cli.SetProxy(http.ProxyURL(parsed))
	case "socks5", "socks5h":
		px, err := proxy.FromURL(parsed, proxy.Direct)
		if err != nil {
			return err
		}
		cli.SetSOCKSProxy(px)
	default:
		return fmt.Errorf("%w %q", ErrUnsupportedProxy, parsed.Scheme)
	}
	return nil
}

// SetProxy sets a HTTP proxy to use for both the REST API and the realtime channel.
// The chain RPC and fiat providers are contacted directly.
//
// To use a SOCKS5 proxy, use SetSOCKSProxy or SetProxyAddress instead.
func (cli *Client) SetProxy(proxyVal Proxy) {
	transport := &http.Transport{
		Proxy: proxyVal,
	}
	cli.configureProxyTransport(transport)
}

// SetSOCKSProxy sets a SOCKS5 proxy to use for both the REST API and the realtime channel.
func (cli *Client) SetSOCKSProxy(px proxy.Dialer) {
	transport := &http.Transport{}
	if contextDialer, ok := px.(proxy.ContextDialer); ok {
		transport.DialContext = contextDialer.DialContext
	} else {
		transport.Dial = px.Dial
	}
	cli.configureProxyTransport(transport)
}

func (cli *Client) configureProxyTransport(transport *http.Transport) {
	if cli.API.HTTP == nil {
		cli.API.HTTP = new(http.Client)
	}
	cli.API.HTTP.Transport = transport
	if conn, ok := cli.Realtime.(*realtime.Conn); ok {
		conn.SetHTTPClient(&http.Client{Transport: transport})
	}
}
