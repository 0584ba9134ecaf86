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

import "laminar/internal/wire"

// replayFetchCommand continues an in-progress client reconnect replay
// after one global-log fetch completes (spec §4.6). It is internal to
// this package: nothing outside node ever constructs one.
type replayFetchCommand struct {
	Client   wire.ClientID
	Offset   uint64
	Mutation *wire.Mutation
	Err      error
}

func (replayFetchCommand) isCommand() {}

// handleClientReconnect resumes a session: it replays every committed
// mutation the client might have missed since LastKnownCommitOffset,
// then any of its mutations still in flight, then closes out with
// CLIENT_READY (spec §4.6).
func (n *NodeState) handleClientReconnect(c ClientReconnectCommand) {
	n.clients[c.Client] = &clientSession{
		id: c.Client, expectedNonce: c.FirstResentNonce, replaying: true,
	}
	n.replayFrom(c.Client, c.LastKnownCommitOffset+1)
}

// replayFrom scans forward one committed offset at a time, synthesizing
// RECEIVED+COMMITTED for every mutation this client authored, until it
// catches up to the current commit point, then hands off to
// replayInflight for anything still uncommitted.
func (n *NodeState) replayFrom(client wire.ClientID, offset uint64) {
	if !n.hasCommitted || offset > n.lastCommittedOffset {
		n.replayInflight(client)
		return
	}
	n.store.FetchAsync(offset, func(m *wire.Mutation, err error) {
		n.Enqueue(replayFetchCommand{Client: client, Offset: offset, Mutation: m, Err: err})
	})
}

// handleReplayFetch is the continuation of replayFrom once one fetch
// completes.
func (n *NodeState) handleReplayFetch(c replayFetchCommand) {
	sess, ok := n.clients[c.Client]
	if !ok || !sess.replaying {
		return // client disconnected again mid-replay
	}
	if c.Err == nil && c.Mutation != nil && c.Mutation.ClientID == c.Client {
		n.clientSender.SendReceived(c.Client, c.Mutation.Nonce, c.Offset)
		n.clientSender.SendCommitted(c.Client, c.Mutation.Nonce, c.Offset, "")
		sess.bumpNonceSeen(c.Mutation.Nonce)
	}
	n.replayFrom(c.Client, c.Offset+1)
}

// replayInflight replays RECEIVED-only acks for this client's
// not-yet-committed mutations, then signals CLIENT_READY with the
// nonce after the highest one observed during the whole replay (or
// the client's FirstResentNonce if that is larger), per spec §4.6 —
// not simply the nonce the client itself requested resuming
// from, since a client that under-reports its own progress must still
// be told the true next nonce.
func (n *NodeState) replayInflight(client wire.ClientID) {
	sess, ok := n.clients[client]
	if !ok {
		return
	}
	for _, m := range n.inflightBuf.All() {
		if m.ClientID == client {
			n.clientSender.SendReceived(client, m.Nonce, n.commitSentinelForClient())
			sess.bumpNonceSeen(m.Nonce)
		}
	}
	sess.replaying = false
	n.clientSender.SendClientReady(client, sess.expectedNonce)
}
