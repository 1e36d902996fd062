// Copyright (c) 2025 Tulir Asokan
//
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package realtime

import (
	"context"
	"net/http"

	"github.com/coder/websocket"
)

// MaxMessageSize is the read limit of a single realtime message.
const MaxMessageSize = 1 << 20

// Socket is an open message-oriented connection.
type Socket interface {
	Read(ctx context.Context) ([]byte, error)
	Write(ctx context.Context, data []byte) error
	Close() error
}

// Transport opens sockets. The default implementation is WebSocketTransport, tests can plug in
// an in-memory transport.
type Transport interface {
	Dial(ctx context.Context, url string, header http.Header) (Socket, error)
}

// WebSocketTransport dials websockets using github.com/coder/websocket.
type WebSocketTransport struct {
	HTTPClient *http.Client
}

var _ Transport = (*WebSocketTransport)(nil)

func (wst *WebSocketTransport) Dial(ctx context.Context, url string, header http.Header) (Socket, error) {
	conn, resp, err := websocket.Dial(ctx, url, &websocket.DialOptions{
		HTTPClient: wst.HTTPClient,
		HTTPHeader: header,
	})
	if err != nil {
		if resp != nil {
			err = ErrWithStatusCode{err, resp.StatusCode}
		}
		return nil, err
	}
	conn.SetReadLimit(MaxMessageSize)
	return &webSocket{conn: conn}, nil
}

type webSocket struct {
	conn *websocket.Conn
}

func (ws *webSocket) Read(ctx context.Context) ([]byte, error) {
	for {
		msgType, data, err := ws.conn.Read(ctx)
		if err != nil {
			return nil, err
		} else if msgType == websocket.MessageText {
			return data, nil
		}
	}
}

func (ws *webSocket) Write(ctx context.Context, data []byte) error {
	return ws.conn.Write(ctx, websocket.MessageText, data)
}

func (ws *webSocket) Close() error {
	return ws.conn.Close(websocket.StatusNormalClosure, "")
}
