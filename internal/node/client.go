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

package node

import (
	"laminar/internal/errs"
	"laminar/internal/wire"
)

// handleClientHandshake opens a brand-new session at nonce 0
// (spec §4.6: a first-time client has nothing to replay).
func (n *NodeState) handleClientHandshake(c ClientHandshakeCommand) {
	n.clients[c.Client] = &clientSession{id: c.Client, expectedNonce: 0}
	n.clientSender.SendClientReady(c.Client, 0)
}

// handleClientDisconnect drops a client's session and any listener
// subscriptions it held.
func (n *NodeState) handleClientDisconnect(c ClientDisconnectCommand) {
	delete(n.clients, c.Client)
	delete(n.listeners, c.Client)
}

// handleClientWatch subscribes a connection to a topic's event stream
// (spec §4.8). Historical backfill from LastReceivedLocal is left to
// the gateway, which can serve it directly from the topic's event log
// without going through the core.
func (n *NodeState) handleClientWatch(c ClientWatchCommand) {
	n.listeners[c.Client] = append(n.listeners[c.Client], listenerSub{id: c.Client, topic: c.Topic})
}

// handleClientRequest is the client-accepted mutation pipeline
// (spec §4.3): validate, stamp, buffer, ack RECEIVED, replicate, and
// try to commit.
func (n *NodeState) handleClientRequest(c ClientRequestCommand) {
	if n.role != RoleLeader {
		n.redirectClient(c.Client)
		return
	}

	sess, ok := n.clients[c.Client]
	if !ok {
		e := errs.ProtocolErr("handshake required before request")
		n.clientSender.SendError(c.Client, uint16(e.Code), e.Error())
		return
	}
	if sess.replaying {
		e := errs.ProtocolErr("reconnect replay still in progress")
		n.clientSender.SendError(c.Client, uint16(e.Code), e.Error())
		return
	}
	if c.Req.Nonce != sess.expectedNonce {
		e := errs.BadNonce(sess.expectedNonce, c.Req.Nonce)
		n.clientSender.SendError(c.Client, uint16(e.Code), e.Error())
		return
	}
	if c.Req.Kind == wire.MutationUpdateConfig {
		if err := validateConfigChange(n.currentConfig, c.Req.Config); err != nil {
			n.clientSender.SendError(c.Client, uint16(errs.GetCode(err)), err.Error())
			return
		}
	}

	offset := n.nextGlobalOffset
	m := &wire.Mutation{
		Kind: c.Req.Kind, Term: n.term, GlobalOffset: offset, Topic: c.Req.Topic,
		ClientID: c.Client, Nonce: c.Req.Nonce,
		Code: c.Req.Code, Args: c.Req.Args, Key: c.Req.Key, Value: c.Req.Value, Config: c.Req.Config,
	}
	n.inflightBuf.Append(m)
	n.nextGlobalOffset++
	sess.expectedNonce++

	if m.Kind == wire.MutationUpdateConfig {
		n.tracker.BeginJointConsensus(m.Config, offset)
	}
	n.tracker.Ack(n.self, offset)

	n.clientSender.SendReceived(c.Client, m.Nonce, n.commitSentinelForClient())
	n.broadcastAppend()
	n.advanceCommit()
}

// commitSentinelForClient reports the committed offset to echo back on
// a RECEIVED ack: 0 before anything has committed.
func (n *NodeState) commitSentinelForClient() uint64 {
	if !n.hasCommitted {
		return 0
	}
	return n.lastCommittedOffset
}

// redirectClient points a client at the current leader, or reports
// that none is known yet (spec §4.3: "a follower receiving a client
// request redirects rather than rejecting outright").
func (n *NodeState) redirectClient(client wire.ClientID) {
	if !n.haveLeader {
		e := errs.NotLeader("no leader is known yet; retry shortly")
		n.clientSender.SendError(client, uint16(e.Code), e.Error())
		return
	}
	entry, ok := n.currentConfig.Entry(n.leaderID)
	if !ok {
		e := errs.NotLeader("the last known leader is no longer a cluster member")
		n.clientSender.SendError(client, uint16(e.Code), e.Error())
		return
	}
	n.clientSender.SendRedirect(client, entry.ClientAddr)
}

// validateConfigChange enforces the single-step membership change
// restriction joint consensus requires (spec §4.4, §9): a config
// change may add or remove at most one member relative to the current
// config.
func validateConfigChange(current, next *wire.ClusterConfig) error {
	if next == nil || len(next.Entries) == 0 {
		return errs.InvalidConfigChange("a cluster config must name at least one member")
	}
	oldMembers := current.Members()
	newMembers := next.Members()
	added, removed := 0, 0
	for id := range newMembers {
		if _, ok := oldMembers[id]; !ok {
			added++
		}
	}
	for id := range oldMembers {
		if _, ok := newMembers[id]; !ok {
			removed++
		}
	}
	if added+removed > 1 {
		return errs.InvalidConfigChange("a config change may add or remove at most one member at a time")
	}
	return nil
}
