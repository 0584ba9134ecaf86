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

package gateway

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"laminar/internal/logging"
	"laminar/internal/node"
	"laminar/internal/transport"
	"laminar/internal/wire"
)

// PeerGateway accepts and dials connections to other cluster members,
// decodes replication/election frames into node.Command values, and
// implements node.PeerSender by writing frames back out to whichever
// connection is currently open for a given peer.
type PeerGateway struct {
	log  *logging.Logger
	self wire.NodeID
	ln   *transport.Listener
	core *node.NodeState

	mu    sync.Mutex
	conns map[wire.NodeID]*transport.Conn

	// dialing coalesces concurrent Connect calls for the same peer:
	// reconcilePeers on a config commit and an inbound identity frame
	// can race to dial the same member at nearly the same instant.
	dialing singleflight.Group
}

// NewPeerGateway binds addr and returns a gateway ready to Serve.
func NewPeerGateway(self wire.NodeID, addr string) (*PeerGateway, error) {
	ln, err := transport.Listen(addr)
	if err != nil {
		return nil, err
	}
	return &PeerGateway{
		log:   logging.NewLogger("peer-gateway"),
		self:  self,
		ln:    ln,
		conns: make(map[wire.NodeID]*transport.Conn),
	}, nil
}

// Attach wires the gateway to the core it feeds. Must be called before
// Serve.
func (g *PeerGateway) Attach(core *node.NodeState) { g.core = core }

// Addr returns the bound local address.
func (g *PeerGateway) Addr() string { return g.ln.Addr().String() }

// Close stops accepting new peer connections.
func (g *PeerGateway) Close() error { return g.ln.Close() }

// Serve runs the accept loop until the listener closes.
func (g *PeerGateway) Serve() error {
	return g.ln.Serve(func(c *transport.Conn) {
		g.handleConn(c)
	})
}

// Connect dials a newly-added cluster member and registers the
// resulting connection. Safe to call repeatedly for the same entry;
// concurrent calls for the same node id share one dial.
func (g *PeerGateway) Connect(entry wire.ConfigEntry) {
	if entry.NodeID == g.self {
		return
	}
	key := fmt.Sprintf("%x", entry.NodeID)
	go func() {
		_, _, _ = g.dialing.Do(key, func() (any, error) {
			g.mu.Lock()
			_, already := g.conns[entry.NodeID]
			g.mu.Unlock()
			if already {
				return nil, nil
			}
			c, err := transport.Dial(entry.ClusterAddr.String())
			if err != nil {
				g.log.Warn("dial peer failed", "peer", key, "addr", entry.ClusterAddr.String(), "error", err.Error())
				return nil, err
			}
			ident := &wire.IdentityFrame{NodeID: g.self, ClusterAddr: entry.ClusterAddr}
			payload, err := ident.Encode()
			if err != nil {
				c.Close()
				return nil, err
			}
			if err := c.Send(payload); err != nil {
				c.Close()
				return nil, err
			}
			g.mu.Lock()
			g.conns[entry.NodeID] = c
			g.mu.Unlock()
			go g.handleConn(c)
			return nil, nil
		})
	}()
}

// Disconnect drops the connection to a peer, if any.
func (g *PeerGateway) Disconnect(peer wire.NodeID) {
	g.mu.Lock()
	c := g.conns[peer]
	delete(g.conns, peer)
	g.mu.Unlock()
	if c != nil {
		c.Close()
	}
}

func (g *PeerGateway) handleConn(c *transport.Conn) {
	var peer wire.NodeID
	defer func() {
		if !isZeroNodeID(peer) {
			g.mu.Lock()
			if g.conns[peer] == c {
				delete(g.conns, peer)
			}
			g.mu.Unlock()
			g.core.Enqueue(node.PeerDisconnectCommand{Peer: peer})
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
		msgType := wire.PeerMsgType(frame[0])
		body := frame[1:]

		switch msgType {
		case wire.PMsgIdentity:
			ident, err := wire.DecodeIdentity(body)
			if err != nil {
				continue
			}
			peer = ident.NodeID
			g.mu.Lock()
			if _, already := g.conns[peer]; !already {
				g.conns[peer] = c
			}
			g.mu.Unlock()
			g.core.Enqueue(node.PeerIdentityCommand{Peer: peer, Entry: wire.ConfigEntry{
				NodeID: ident.NodeID, ClusterAddr: ident.ClusterAddr, ClientAddr: ident.ClientAddr,
			}})
		case wire.PMsgAppendMutations:
			if isZeroNodeID(peer) {
				continue
			}
			f, err := wire.DecodeAppendMutations(body)
			if err != nil {
				continue
			}
			g.core.Enqueue(node.PeerAppendCommand{Peer: peer, Frame: f})
		case wire.PMsgReceivedMutations:
			if isZeroNodeID(peer) {
				continue
			}
			f, err := wire.DecodeReceivedMutations(body)
			if err != nil {
				continue
			}
			g.core.Enqueue(node.PeerReceivedCommand{Peer: peer, Frame: f})
		case wire.PMsgRequestVotes:
			if isZeroNodeID(peer) {
				continue
			}
			f, err := wire.DecodeRequestVotes(body)
			if err != nil {
				continue
			}
			g.core.Enqueue(node.PeerRequestVotesCommand{Peer: peer, Frame: f})
		case wire.PMsgVote:
			if isZeroNodeID(peer) {
				continue
			}
			f, err := wire.DecodeVote(body)
			if err != nil {
				continue
			}
			g.core.Enqueue(node.PeerVoteCommand{Peer: peer, Frame: f})
		case wire.PMsgPeerState:
			if isZeroNodeID(peer) {
				continue
			}
			f, err := wire.DecodePeerState(body)
			if err != nil {
				continue
			}
			g.core.Enqueue(node.PeerPeerStateCommand{Peer: peer, Frame: f})
		}
	}
}

func (g *PeerGateway) conn(peer wire.NodeID) *transport.Conn {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.conns[peer]
}

func (g *PeerGateway) send(peer wire.NodeID, payload []byte) {
	c := g.conn(peer)
	if c == nil {
		return
	}
	if err := c.Send(payload); err != nil {
		g.log.Warn("peer send failed", "peer", fmt.Sprintf("%x", peer[:4]), "error", err.Error())
	}
}

// SendIdentity implements node.PeerSender.
func (g *PeerGateway) SendIdentity(peer wire.NodeID, self wire.ConfigEntry) {
	f := &wire.IdentityFrame{NodeID: self.NodeID, ClusterAddr: self.ClusterAddr, ClientAddr: self.ClientAddr}
	payload, err := f.Encode()
	if err != nil {
		return
	}
	g.send(peer, payload)
}

// SendAppend implements node.PeerSender.
func (g *PeerGateway) SendAppend(peer wire.NodeID, frame *wire.AppendMutationsFrame) {
	payload, err := frame.Encode()
	if err != nil {
		return
	}
	g.send(peer, payload)
}

// SendReceivedMutations implements node.PeerSender.
func (g *PeerGateway) SendReceivedMutations(peer wire.NodeID, frame *wire.ReceivedMutationsFrame) {
	g.send(peer, frame.Encode())
}

// SendRequestVotes implements node.PeerSender.
func (g *PeerGateway) SendRequestVotes(peer wire.NodeID, frame *wire.RequestVotesFrame) {
	g.send(peer, frame.Encode())
}

// SendVote implements node.PeerSender.
func (g *PeerGateway) SendVote(peer wire.NodeID, frame *wire.VoteFrame) {
	g.send(peer, frame.Encode())
}

func isZeroNodeID(id wire.NodeID) bool {
	var zero wire.NodeID
	return id == zero
}
