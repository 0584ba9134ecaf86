/*
 * Copyright (c) 2026 Laminar Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

/*
Package gateway implements the two collaborators that sit between the
network and NodeState: ClientGateway speaks the client protocol,
PeerGateway speaks the peer replication/election protocol. Both only
ever touch the core by enqueueing node.Command values or by having
their Send* methods invoked from the core's own goroutine; neither
gateway ever calls back into NodeState synchronously.
*/
package gateway

import (
	"fmt"
	"sync"

	"laminar/internal/errs"
	"laminar/internal/logging"
	"laminar/internal/node"
	"laminar/internal/transport"
	"laminar/internal/wire"
)

// ClientGateway accepts client connections, decodes frames into
// node.Command values, and fans committed events back out to
// listeners.
type ClientGateway struct {
	log  *logging.Logger
	ln   *transport.Listener
	core *node.NodeState

	mu    sync.Mutex
	conns map[wire.ClientID]*transport.Conn
}

// NewClientGateway binds addr and returns a gateway ready to Serve.
func NewClientGateway(addr string) (*ClientGateway, error) {
	ln, err := transport.Listen(addr)
	if err != nil {
		return nil, err
	}
	return &ClientGateway{
		log:   logging.NewLogger("client-gateway"),
		ln:    ln,
		conns: make(map[wire.ClientID]*transport.Conn),
	}, nil
}

// Attach wires the gateway to the core it feeds. Must be called before
// Serve.
func (g *ClientGateway) Attach(core *node.NodeState) { g.core = core }

// Addr returns the bound local address.
func (g *ClientGateway) Addr() string { return g.ln.Addr().String() }

// Close stops accepting new client connections.
func (g *ClientGateway) Close() error { return g.ln.Close() }

// Serve runs the accept loop until the listener closes.
func (g *ClientGateway) Serve() error {
	return g.ln.Serve(func(c *transport.Conn) {
		g.handleConn(c)
	})
}

func (g *ClientGateway) handleConn(c *transport.Conn) {
	var client wire.ClientID
	defer func() {
		if !client.IsZero() {
			g.mu.Lock()
			delete(g.conns, client)
			g.mu.Unlock()
			g.core.Enqueue(node.ClientDisconnectCommand{Client: client})
		}
		c.Close()
	}()

	for {
		frame, err := c.ReadFrame()
		if err != nil {
			return
		}
		if len(frame) < 1 {
			continue
		}
		msgType := wire.ClientMsgType(frame[0])
		body := frame[1:]

		switch msgType {
		case wire.CMsgHandshake:
			h, err := wire.DecodeHandshake(body)
			if err != nil {
				continue
			}
			client = h.ClientID
			g.mu.Lock()
			g.conns[client] = c
			g.mu.Unlock()
			g.core.Enqueue(node.ClientHandshakeCommand{Client: client})
		case wire.CMsgReconnect:
			r, err := wire.DecodeReconnect(body)
			if err != nil {
				continue
			}
			client = r.ClientID
			g.mu.Lock()
			g.conns[client] = c
			g.mu.Unlock()
			g.core.Enqueue(node.ClientReconnectCommand{
				Client: client, LastKnownCommitOffset: r.LastKnownCommitOffset, FirstResentNonce: r.FirstResentNonce,
			})
		case wire.CMsgRequest:
			if client.IsZero() {
				continue
			}
			req, err := wire.DecodeClientRequest(body)
			if err != nil {
				g.SendError(client, uint16(errs.CodeMalformedFrame), err.Error())
				continue
			}
			g.core.Enqueue(node.ClientRequestCommand{Client: client, Req: req})
		case wire.CMsgWatch:
			if client.IsZero() {
				continue
			}
			w, err := wire.DecodeWatch(body)
			if err != nil {
				continue
			}
			g.core.Enqueue(node.ClientWatchCommand{Client: client, Topic: w.Topic, LastReceivedLocal: w.LastReceivedLocal})
		default:
			g.SendError(client, uint16(errs.CodeUnknownMsgType), fmt.Sprintf("unknown client message type 0x%02x", msgType))
		}
	}
}

func (g *ClientGateway) conn(client wire.ClientID) *transport.Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[client]
}

func (g *ClientGateway) send(client wire.ClientID, payload []byte) {
	c := g.conn(client)
	if c == nil {
		return
	}
	if err := c.Send(payload); err != nil {
		g.log.Warn("client send failed", "client", fmt.Sprintf("%x", client[:4]), "error", err.Error())
	}
}

// SendReceived implements node.ClientSender.
func (g *ClientGateway) SendReceived(client wire.ClientID, nonce, committedOffset uint64) {
	f := &wire.ReceivedFrame{Nonce: nonce, CommittedOffset: committedOffset}
	g.send(client, f.Encode())
}

// SendCommitted implements node.ClientSender.
func (g *ClientGateway) SendCommitted(client wire.ClientID, nonce, committedOffset uint64, errMsg string) {
	f := &wire.CommittedFrame{Nonce: nonce, CommittedOffset: committedOffset}
	if errMsg != "" {
		f.ErrorCode = uint16(errs.CodeProjector)
		f.ErrorMessage = errMsg
	}
	g.send(client, f.Encode())
}

// SendRedirect implements node.ClientSender.
func (g *ClientGateway) SendRedirect(client wire.ClientID, leaderClientAddr wire.Addr) {
	f := &wire.RedirectFrame{LeaderClientAddr: leaderClientAddr}
	payload, err := f.Encode()
	if err != nil {
		return
	}
	g.send(client, payload)
}

// SendError implements node.ClientSender.
func (g *ClientGateway) SendError(client wire.ClientID, code uint16, msg string) {
	f := &wire.ErrorFrame{Code: code, Message: msg}
	g.send(client, f.Encode())
}

// SendClientReady implements node.ClientSender.
func (g *ClientGateway) SendClientReady(client wire.ClientID, nextNonce uint64) {
	f := &wire.ClientReadyFrame{NextNonce: nextNonce}
	g.send(client, f.Encode())
}

// SendEvent implements node.ClientSender.
func (g *ClientGateway) SendEvent(listener wire.ClientID, topicName string, ev *wire.Event) {
	f := &wire.EventFrame{Topic: topicName, Event: ev}
	payload, err := f.Encode()
	if err != nil {
		return
	}
	g.send(listener, payload)
}

// SendConfigUpdate implements node.ClientSender.
func (g *ClientGateway) SendConfigUpdate(listener wire.ClientID, term uint64, cfg *wire.ClusterConfig) {
	f := &wire.ConfigUpdateFrame{Term: term, Config: cfg}
	payload, err := f.Encode()
	if err != nil {
		return
	}
	g.send(listener, payload)
}

// Disconnect implements node.ClientSender.
func (g *ClientGateway) Disconnect(client wire.ClientID) {
	if c := g.conn(client); c != nil {
		c.Close()
	}
}
