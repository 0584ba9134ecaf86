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

// broadcastAppend sends every downstream peer the AppendMutations RPC
// appropriate to its own replication cursor (spec §4.5). Called after
// every locally-appended entry and on every heartbeat tick; a peer
// with nothing new to send still gets a heartbeat so it can advance
// its view of the leader's committed offset.
func (n *NodeState) broadcastAppend() {
	if n.role != RoleLeader {
		return
	}
	for id, p := range n.peers {
		if id == n.self {
			continue
		}
		n.sendAppendTo(p)
	}
}

// sendAppendTo builds and sends one AppendMutations RPC for p. If the
// entry immediately preceding p's cursor has already been trimmed from
// the in-flight buffer, it issues a coalesced fetch from the log store
// and defers sending until that completes (spec §4.5 "stale peer
// catch-up").
func (n *NodeState) sendAppendTo(p *peerState) {
	var prevOffset uint64
	var prevTerm uint64

	if p.nextToSend > 0 {
		prevOffset = p.nextToSend - 1
		t, ok := n.inflightBuf.PeekTerm(prevOffset)
		if !ok {
			t, ok = n.fetchedTerms[prevOffset]
		}
		if !ok {
			n.fetchPreviousTerm(prevOffset, p.id)
			return
		}
		prevTerm = t
	} else {
		prevOffset = noCommitSentinel
	}

	var entries []*wire.Mutation
	next := p.nextToSend
	for next < n.inflightBuf.NextOffset() && len(entries) < maxAppendBatch {
		if m := n.inflightBuf.Peek(next); m != nil {
			entries = append(entries, m)
		}
		next++
	}

	frame := &wire.AppendMutationsFrame{
		Term:                  n.term,
		PreviousOffset:        prevOffset,
		PreviousTerm:          prevTerm,
		Entries:               entries,
		LeaderCommittedOffset: n.commitSentinel(),
	}
	n.peerSender.SendAppend(p.id, frame)
}

// fetchPreviousTerm issues (or waits on an already-outstanding) fetch
// for the mutation at offset, caching its term for sendAppendTo to
// consume once LogFetchDoneCommand arrives.
func (n *NodeState) fetchPreviousTerm(offset uint64, forPeer wire.NodeID) {
	if _, pending := n.pendingFetches[offset]; pending {
		return
	}
	n.pendingFetches[offset] = &pendingFetch{}
	n.store.FetchAsync(offset, func(m *wire.Mutation, err error) {
		n.Enqueue(LogFetchDoneCommand{Offset: offset, Mutation: m, Err: err, ForPeer: forPeer})
	})
}

// commitSentinel reports what this leader should advertise as its
// committed offset: noCommitSentinel until its first commit.
func (n *NodeState) commitSentinel() uint64 {
	if !n.hasCommitted {
		return noCommitSentinel
	}
	return n.lastCommittedOffset
}

// handleLogFetchDone completes a stale-peer catch-up fetch, caching
// the fetched entry's term and retrying replication to the peer that
// triggered it.
func (n *NodeState) handleLogFetchDone(c LogFetchDoneCommand) {
	delete(n.pendingFetches, c.Offset)
	if c.Err != nil {
		return
	}
	if c.Mutation != nil {
		n.fetchedTerms[c.Offset] = c.Mutation.Term
	}
	if n.role != RoleLeader {
		return
	}
	if p, ok := n.peers[c.ForPeer]; ok && p.connected {
		n.sendAppendTo(p)
	}
}

// handlePeerAppend is the follower side of the replication RPC
// (spec §4.5): it validates the log-matching precondition, rewinds
// and re-appends on conflict, advances its own commit point, and acks.
func (n *NodeState) handlePeerAppend(c PeerAppendCommand) {
	f := c.Frame
	if f.Term < n.term {
		n.peerSender.SendReceivedMutations(c.Peer, &wire.ReceivedMutationsFrame{
			Term: n.term, AckedOffset: noCommitSentinel, MatchSucceeded: false,
		})
		return
	}
	if f.Term > n.term || n.role != RoleFollower {
		n.becomeFollower(f.Term)
	}
	n.leaderID = c.Peer
	n.haveLeader = true
	n.resetElectionTimer()

	if f.PreviousOffset != noCommitSentinel {
		t, ok := n.inflightBuf.PeekTerm(f.PreviousOffset)
		matches := ok && t == f.PreviousTerm
		if !matches && n.hasCommitted && f.PreviousOffset <= n.lastCommittedOffset {
			// Already committed and trimmed locally; trust the
			// leader rather than rejecting a legitimate heartbeat.
			matches = true
		}
		if !matches {
			n.peerSender.SendReceivedMutations(c.Peer, &wire.ReceivedMutationsFrame{
				Term: n.term, AckedOffset: n.inflightBuf.BaseOffset(), MatchSucceeded: false,
			})
			return
		}
		n.inflightBuf.DropTailFrom(f.PreviousOffset + 1)
	} else {
		n.inflightBuf.DropTailFrom(0)
	}

	for _, m := range f.Entries {
		if m.GlobalOffset < n.inflightBuf.NextOffset() {
			continue // already have it
		}
		if m.GlobalOffset != n.inflightBuf.NextOffset() {
			// A gap means our view of the log is inconsistent with
			// what the leader just told us to expect; stop applying
			// this batch rather than corrupt offset ordering.
			break
		}
		n.inflightBuf.Append(m)
	}
	n.nextGlobalOffset = n.inflightBuf.NextOffset()

	if f.LeaderCommittedOffset != noCommitSentinel {
		n.applyFollowerCommit(f.LeaderCommittedOffset)
	}

	acked := noCommitSentinel
	if n.inflightBuf.NextOffset() > 0 {
		acked = n.inflightBuf.NextOffset() - 1
	}
	n.peerSender.SendReceivedMutations(c.Peer, &wire.ReceivedMutationsFrame{
		Term: n.term, AckedOffset: acked, MatchSucceeded: true,
	})
}

// handlePeerReceived is the leader side of the replication ack
// (spec §4.5): on success it advances the peer's tracked progress and
// tries to commit further; on failure it rewinds the peer's cursor by
// one and retries, implementing the conflict-backoff protocol.
func (n *NodeState) handlePeerReceived(c PeerReceivedCommand) {
	if n.role != RoleLeader || c.Frame.Term != n.term {
		return
	}
	p, ok := n.peers[c.Peer]
	if !ok {
		return
	}
	if !c.Frame.MatchSucceeded {
		if p.nextToSend > 0 {
			p.nextToSend--
		}
		n.sendAppendTo(p)
		return
	}
	if c.Frame.AckedOffset == noCommitSentinel {
		return
	}
	p.lastReceived = c.Frame.AckedOffset
	p.nextToSend = c.Frame.AckedOffset + 1
	n.tracker.Ack(c.Peer, c.Frame.AckedOffset)
	n.advanceCommit()
}

// handlePeerPeerState folds in an out-of-band progress report, used
// right after a peer reconnects instead of waiting for the next
// heartbeat round trip.
func (n *NodeState) handlePeerPeerState(c PeerPeerStateCommand) {
	if n.role != RoleLeader {
		return
	}
	p, ok := n.peers[c.Peer]
	if !ok {
		return
	}
	if c.Frame.LastReceivedOffset+1 > p.nextToSend {
		p.nextToSend = c.Frame.LastReceivedOffset + 1
	}
	n.tracker.Ack(c.Peer, c.Frame.LastReceivedOffset)
	n.advanceCommit()
}

// handlePeerIdentity records a newly (re)connected peer's addresses
// and, if this node leads, immediately starts replicating to it.
func (n *NodeState) handlePeerIdentity(c PeerIdentityCommand) {
	p, ok := n.peers[c.Peer]
	if !ok {
		p = &peerState{id: c.Peer}
		n.peers[c.Peer] = p
	}
	p.entry = c.Entry
	p.connected = true
	if n.role == RoleLeader {
		if p.nextToSend == 0 {
			p.nextToSend = n.inflightBuf.NextOffset()
		}
		n.sendAppendTo(p)
	}
}

// handlePeerDisconnect marks a peer unreachable; replication to it
// resumes automatically once PeerIdentityCommand reports it back.
func (n *NodeState) handlePeerDisconnect(c PeerDisconnectCommand) {
	if p, ok := n.peers[c.Peer]; ok {
		p.connected = false
	}
}
