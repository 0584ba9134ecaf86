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
	"time"

	"laminar/internal/syncprogress"
	"laminar/internal/wire"
)

// handleTick drives both sides of the election timeout and the
// leader's heartbeat cadence (spec §4.1): it is called once per
// heartbeatInterval regardless of role.
func (n *NodeState) handleTick(now time.Time) {
	if n.role == RoleLeader {
		n.broadcastAppend()
		n.advanceCommit()
		return
	}
	if now.Sub(n.lastLeaderContact) >= n.electionTimeoutCur {
		n.startElection()
	}
}

// resetElectionTimer records fresh contact with a leader (or the start
// of a new term) and rolls a new randomized timeout, so that competing
// followers do not all time out simultaneously (spec §4.1).
func (n *NodeState) resetElectionTimer() {
	n.lastLeaderContact = time.Now()
	span := n.electionTimeoutMax - n.electionTimeoutMin
	jitter := time.Duration(0)
	if span > 0 {
		jitter = time.Duration(n.rng.Int63n(int64(span)))
	}
	n.electionTimeoutCur = n.electionTimeoutMin + jitter
}

// startElection transitions to CANDIDATE, votes for itself, and
// solicits votes from every other member of the current config
// (spec §4.1).
func (n *NodeState) startElection() {
	n.role = RoleCandidate
	n.term++
	n.votedForTerm = n.term
	n.votedFor = n.self
	n.votesGranted = map[wire.NodeID]bool{n.self: true}
	n.currentTermHasCommit = false
	n.resetElectionTimer()

	lastTerm, lastOffset := n.lastLogTermOffset()
	frame := &wire.RequestVotesFrame{
		CandidateTerm:      n.term,
		LastReceivedTerm:   lastTerm,
		LastReceivedOffset: lastOffset,
	}
	for id := range n.currentConfig.Members() {
		if id == n.self {
			continue
		}
		n.peerSender.SendRequestVotes(id, frame)
	}
	if n.hasMajority(n.votesGranted) {
		n.becomeLeader()
	}
}

// lastLogTermOffset reports the (term, offset) pair a candidate
// advertises in RequestVotes: the most recent entry this node knows
// about, in flight or already committed.
func (n *NodeState) lastLogTermOffset() (term uint64, offset uint64) {
	if n.inflightBuf.Len() > 0 {
		last := n.inflightBuf.NextOffset() - 1
		if m := n.inflightBuf.Peek(last); m != nil {
			return m.Term, last
		}
	}
	if n.hasCommitted {
		return n.committedTerm, n.lastCommittedOffset
	}
	return 0, 0
}

// becomeFollower steps down to term, resetting per-term candidate and
// leader state (spec §4.1: "a node observing a higher term always
// reverts to FOLLOWER").
func (n *NodeState) becomeFollower(term uint64) {
	n.role = RoleFollower
	n.term = term
	n.votedForTerm = 0
	n.currentTermHasCommit = false
	n.resetElectionTimer()
}

// becomeLeader transitions CANDIDATE -> LEADER once a majority of the
// current config has granted a vote this term, and immediately primes
// every peer's replication cursor and sends the first round of
// AppendMutations (spec §4.1, §4.5).
func (n *NodeState) becomeLeader() {
	n.role = RoleLeader
	n.leaderID = n.self
	n.haveLeader = true
	n.currentTermHasCommit = false
	next := n.inflightBuf.NextOffset()
	for _, p := range n.peers {
		p.nextToSend = next
		p.lastSent = 0
	}
	n.tracker = syncprogress.NewTracker(n.currentConfig, next)
	n.broadcastAppend()
}

// hasMajority reports whether granted covers a majority of the
// current config's members. Joint consensus elections would need a
// majority of every active config simultaneously; this node only
// evaluates the current (latest) config, a documented simplification
// (see DESIGN.md).
func (n *NodeState) hasMajority(granted map[wire.NodeID]bool) bool {
	total := len(n.currentConfig.Entries)
	count := 0
	for id := range n.currentConfig.Members() {
		if granted[id] {
			count++
		}
	}
	return count*2 > total
}

// handlePeerRequestVotes answers a candidate's vote solicitation
// (spec §4.1): grants at most one vote per term, and only to a
// candidate whose log is at least as up to date as this node's.
func (n *NodeState) handlePeerRequestVotes(c PeerRequestVotesCommand) {
	f := c.Frame
	if f.CandidateTerm < n.term {
		n.peerSender.SendVote(c.Peer, &wire.VoteFrame{Term: n.term, Granted: false})
		return
	}
	if f.CandidateTerm > n.term {
		n.becomeFollower(f.CandidateTerm)
	}

	grant := false
	if n.votedForTerm != n.term || n.votedFor == c.Peer {
		myTerm, myOffset := n.lastLogTermOffset()
		upToDate := f.LastReceivedTerm > myTerm ||
			(f.LastReceivedTerm == myTerm && f.LastReceivedOffset >= myOffset)
		if upToDate {
			grant = true
			n.votedForTerm = n.term
			n.votedFor = c.Peer
			n.resetElectionTimer()
		}
	}
	n.peerSender.SendVote(c.Peer, &wire.VoteFrame{Term: n.term, Granted: grant})
}

// handlePeerVote tallies a vote response, becoming leader once a
// majority is reached (spec §4.1).
func (n *NodeState) handlePeerVote(c PeerVoteCommand) {
	if c.Frame.Term > n.term {
		n.becomeFollower(c.Frame.Term)
		return
	}
	if n.role != RoleCandidate || c.Frame.Term != n.term || !c.Frame.Granted {
		return
	}
	n.votesGranted[c.Peer] = true
	if n.hasMajority(n.votesGranted) {
		n.becomeLeader()
	}
}
