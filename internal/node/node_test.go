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
	"sync"
	"testing"
	"time"

	"laminar/internal/logstore"
	"laminar/internal/topic"
	"laminar/internal/wire"
)

// fakeClientSender records every call so tests can assert on it
// without standing up a real gateway.
type fakeClientSender struct {
	mu         sync.Mutex
	received   []wire.ClientID
	committed  []wire.ClientID
	errors     []wire.ClientID
	redirects  []wire.ClientID
	readies    []wire.ClientID
	events     int
	commitErrs []string
}

func (f *fakeClientSender) SendReceived(client wire.ClientID, nonce, committedOffset uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.received = append(f.received, client)
}
func (f *fakeClientSender) SendCommitted(client wire.ClientID, nonce, committedOffset uint64, errMsg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, client)
	f.commitErrs = append(f.commitErrs, errMsg)
}
func (f *fakeClientSender) SendRedirect(client wire.ClientID, leaderClientAddr wire.Addr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects = append(f.redirects, client)
}
func (f *fakeClientSender) SendError(client wire.ClientID, code uint16, msg string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errors = append(f.errors, client)
}
func (f *fakeClientSender) SendClientReady(client wire.ClientID, nextNonce uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readies = append(f.readies, client)
}
func (f *fakeClientSender) SendEvent(listener wire.ClientID, topic string, ev *wire.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events++
}
func (f *fakeClientSender) SendConfigUpdate(listener wire.ClientID, term uint64, cfg *wire.ClusterConfig) {
}
func (f *fakeClientSender) Disconnect(client wire.ClientID) {}

func (f *fakeClientSender) count(ids []wire.ClientID, id wire.ClientID) int {
	n := 0
	for _, x := range ids {
		if x == id {
			n++
		}
	}
	return n
}

// fakePeerSender records every call so multi-peer tests can assert on
// replication traffic without standing up a real peer gateway.
type fakePeerSender struct {
	mu          sync.Mutex
	appends     map[wire.NodeID][]*wire.AppendMutationsFrame
	acks        []*wire.ReceivedMutationsFrame
	disconnects []wire.NodeID
	connects    []wire.ConfigEntry
}

func (f *fakePeerSender) SendIdentity(wire.NodeID, wire.ConfigEntry) {}
func (f *fakePeerSender) SendAppend(peer wire.NodeID, frame *wire.AppendMutationsFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appends == nil {
		f.appends = make(map[wire.NodeID][]*wire.AppendMutationsFrame)
	}
	f.appends[peer] = append(f.appends[peer], frame)
}
func (f *fakePeerSender) SendReceivedMutations(peer wire.NodeID, frame *wire.ReceivedMutationsFrame) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acks = append(f.acks, frame)
}
func (f *fakePeerSender) SendRequestVotes(wire.NodeID, *wire.RequestVotesFrame) {}
func (f *fakePeerSender) SendVote(wire.NodeID, *wire.VoteFrame)                 {}
func (f *fakePeerSender) Connect(entry wire.ConfigEntry) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects = append(f.connects, entry)
}
func (f *fakePeerSender) Disconnect(peer wire.NodeID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects = append(f.disconnects, peer)
}

func (f *fakePeerSender) lastAck() *wire.ReceivedMutationsFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.acks) == 0 {
		return nil
	}
	return f.acks[len(f.acks)-1]
}

func newTestNode(t *testing.T) (*NodeState, *fakeClientSender) {
	n, cs, _ := newTestNodeWithPeerSender(t)
	return n, cs
}

func newTestNodeWithPeerSender(t *testing.T) (*NodeState, *fakeClientSender, *fakePeerSender) {
	t.Helper()
	store, err := logstore.Open(t.TempDir())
	if err != nil {
		t.Fatalf("logstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	cs := &fakeClientSender{}
	ps := &fakePeerSender{}
	var self wire.NodeID
	self[0] = 1
	n := New(Config{
		Self:               self,
		ClientAddr:         wire.Addr{IP: []byte{127, 0, 0, 1}, Port: 7100},
		ClusterAddr:        wire.Addr{IP: []byte{127, 0, 0, 1}, Port: 7200},
		Store:              store,
		Topics:             topic.NewTable(),
		ClientSender:       cs,
		PeerSender:         ps,
		ElectionTimeoutMin: 150 * time.Millisecond,
		ElectionTimeoutMax: 300 * time.Millisecond,
		HeartbeatInterval:  50 * time.Millisecond,
	})
	return n, cs, ps
}

// drainUntil dispatches whatever continuation commands arrive on n's
// queue (log store callbacks, replay fetches) until done reports true
// or two seconds pass, standing in for a real Run loop in tests that
// drive the core directly.
func drainUntil(t *testing.T, n *NodeState, done func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !done() && time.Now().Before(deadline) {
		select {
		case cmd := <-n.cmdCh:
			n.dispatch(cmd)
		default:
			time.Sleep(time.Millisecond)
		}
	}
	if !done() {
		t.Fatalf("drainUntil: condition never became true")
	}
}

func TestSingleNodeBootstrapIsLeader(t *testing.T) {
	n, _ := newTestNode(t)
	if n.role != RoleLeader {
		t.Fatalf("role = %v, want LEADER", n.role)
	}
	if len(n.currentConfig.Entries) != 1 {
		t.Fatalf("bootstrap config has %d entries, want 1", len(n.currentConfig.Entries))
	}
}

func TestSingleNodeCommitsImmediately(t *testing.T) {
	n, cs := newTestNode(t)

	var client wire.ClientID
	client[0] = 0xaa
	n.handleClientHandshake(ClientHandshakeCommand{Client: client})

	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationCreateTopic, Nonce: 0, Topic: "orders"},
	})
	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationPut, Nonce: 1, Topic: "orders", Key: []byte("k"), Value: []byte("v")},
	})

	// The log store confirms durability asynchronously; drain the
	// resulting LogAppendDoneCommand continuations synchronously for
	// the test, same as a real Run loop would as they arrive.
	drainUntil(t, n, func() bool { return cs.count(cs.committed, client) >= 2 })

	if !n.hasCommitted || n.lastCommittedOffset != 1 {
		t.Fatalf("hasCommitted=%v lastCommittedOffset=%d, want true/1", n.hasCommitted, n.lastCommittedOffset)
	}
	if cs.count(cs.received, client) != 2 {
		t.Fatalf("received acks = %d, want 2", cs.count(cs.received, client))
	}
	if cs.count(cs.committed, client) != 2 {
		t.Fatalf("committed acks = %d, want 2", cs.count(cs.committed, client))
	}
	if st := n.topics.Get("orders"); st == nil || st.LocalOffset != 2 {
		t.Fatalf("topic state = %+v, want LocalOffset 2", st)
	}
}

func TestFollowerRedirectsClientRequests(t *testing.T) {
	n, cs := newTestNode(t)
	n.becomeFollower(n.term + 1)

	var client wire.ClientID
	client[0] = 0xbb
	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationCreateTopic, Nonce: 0, Topic: "orders"},
	})

	if len(cs.redirects) != 1 || cs.redirects[0] != client {
		t.Fatalf("redirects = %v, want one redirect for %v", cs.redirects, client)
	}
}

func TestBadNonceProducesError(t *testing.T) {
	n, cs := newTestNode(t)
	var client wire.ClientID
	client[0] = 0xcc
	n.handleClientHandshake(ClientHandshakeCommand{Client: client})

	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationCreateTopic, Nonce: 5, Topic: "orders"},
	})

	if len(cs.errors) != 1 {
		t.Fatalf("errors = %d, want 1", len(cs.errors))
	}
	if len(cs.received) != 0 {
		t.Fatalf("expected no RECEIVED ack on a bad nonce")
	}
}

func TestLeaderCompletenessGuardWithholdsOlderTermCommit(t *testing.T) {
	n, _ := newTestNode(t)
	// Simulate an entry appended in an earlier term, still in flight,
	// with the consensus offset already covering it but the current
	// term not yet represented in the log at all.
	n.term = 5
	m := &wire.Mutation{Kind: wire.MutationCreateTopic, Term: 3, GlobalOffset: 0, Topic: "orders"}
	n.inflightBuf.Append(m)
	n.nextGlobalOffset = 1
	n.tracker.Ack(n.self, 0)

	n.advanceCommit()

	if n.hasCommitted {
		t.Fatalf("committed an older-term entry before any current-term entry reached consensus")
	}
}

func TestReconnectReplaysCommittedAndInflightMutations(t *testing.T) {
	n, cs := newTestNode(t)
	var client wire.ClientID
	client[0] = 0xdd
	n.handleClientHandshake(ClientHandshakeCommand{Client: client})
	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationCreateTopic, Nonce: 0, Topic: "orders"},
	})
	drainUntil(t, n, func() bool { return n.hasCommitted })

	// Drop the session (as if the connection closed) and reconnect
	// claiming to have seen nothing committed yet.
	n.handleClientDisconnect(ClientDisconnectCommand{Client: client})
	cs.received = nil
	cs.committed = nil
	cs.readies = nil

	n.handleClientReconnect(ClientReconnectCommand{Client: client, LastKnownCommitOffset: 0, FirstResentNonce: 1})
	// Single-node store fetch runs asynchronously; drain the resulting
	// continuation command synchronously for the test.
	drainUntil(t, n, func() bool { return len(cs.readies) > 0 })
	if len(cs.readies) != 1 || cs.readies[0] != client {
		t.Fatalf("readies = %v, want exactly one CLIENT_READY for %v", cs.readies, client)
	}
}

func TestJointConsensusGrowsAndCommitsConfigChange(t *testing.T) {
	n, cs, _ := newTestNodeWithPeerSender(t)

	var peer2 wire.NodeID
	peer2[0] = 2
	peerEntry := wire.ConfigEntry{
		NodeID:      peer2,
		ClusterAddr: wire.Addr{IP: []byte{127, 0, 0, 1}, Port: 7201},
		ClientAddr:  wire.Addr{IP: []byte{127, 0, 0, 1}, Port: 7101},
	}
	n.handlePeerIdentity(PeerIdentityCommand{Peer: peer2, Entry: peerEntry})
	if _, ok := n.peers[peer2]; !ok {
		t.Fatalf("handlePeerIdentity did not register peer2")
	}

	newConfig := &wire.ClusterConfig{Entries: append(append([]wire.ConfigEntry{}, n.currentConfig.Entries...), peerEntry)}

	var client wire.ClientID
	client[0] = 1
	n.handleClientHandshake(ClientHandshakeCommand{Client: client})
	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationUpdateConfig, Nonce: 0, Config: newConfig},
	})
	if !n.tracker.IsJointConsensus() {
		t.Fatalf("expected joint consensus to begin once UPDATE_CONFIG was appended")
	}

	drainUntil(t, n, func() bool { return n.hasCommitted })
	if len(n.currentConfig.Entries) != 2 {
		t.Fatalf("currentConfig has %d entries after config commit, want 2", len(n.currentConfig.Entries))
	}
	if n.tracker.IsJointConsensus() {
		t.Fatalf("joint consensus should collapse once the config change commits")
	}

	// A further mutation now needs majority of the 2-member config:
	// self alone is not enough.
	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationCreateTopic, Nonce: 1, Topic: "orders"},
	})
	if n.hasCommitted && n.lastCommittedOffset >= 1 {
		t.Fatalf("CREATE_TOPIC committed without peer2's ack")
	}

	n.handlePeerReceived(PeerReceivedCommand{
		Peer:  peer2,
		Frame: &wire.ReceivedMutationsFrame{Term: n.term, AckedOffset: 1, MatchSucceeded: true},
	})
	drainUntil(t, n, func() bool { return n.hasCommitted && n.lastCommittedOffset == 1 })
	if cs.count(cs.committed, client) < 2 {
		t.Fatalf("committed acks = %d, want at least 2", cs.count(cs.committed, client))
	}
}

func TestFollowerRewindsOnTermMismatch(t *testing.T) {
	n, _, ps := newTestNodeWithPeerSender(t)
	n.becomeFollower(4)

	// The follower's log disagrees with the leader from offset 0
	// onward: both entries were written in an earlier term.
	n.inflightBuf.Append(&wire.Mutation{Kind: wire.MutationCreateTopic, Term: 3, GlobalOffset: 0, Topic: "orders"})
	n.inflightBuf.Append(&wire.Mutation{Kind: wire.MutationCreateTopic, Term: 3, GlobalOffset: 1, Topic: "ledger"})
	n.nextGlobalOffset = 2

	var leader wire.NodeID
	leader[0] = 9

	n.handlePeerAppend(PeerAppendCommand{
		Peer: leader,
		Frame: &wire.AppendMutationsFrame{
			Term: 4, PreviousOffset: 1, PreviousTerm: 4, LeaderCommittedOffset: noCommitSentinel,
		},
	})
	if ack := ps.lastAck(); ack == nil || ack.MatchSucceeded {
		t.Fatalf("expected a rejected ack on term mismatch, got %+v", ack)
	}
	if term, _ := n.inflightBuf.PeekTerm(0); term != 3 {
		t.Fatalf("log was rewound before the leader resent from scratch")
	}

	// Leader backs off all the way and resends its authoritative log
	// from offset 0, at the current term.
	n.handlePeerAppend(PeerAppendCommand{
		Peer: leader,
		Frame: &wire.AppendMutationsFrame{
			Term:           4,
			PreviousOffset: noCommitSentinel,
			Entries: []*wire.Mutation{
				{Kind: wire.MutationCreateTopic, Term: 4, GlobalOffset: 0, Topic: "orders"},
				{Kind: wire.MutationCreateTopic, Term: 4, GlobalOffset: 1, Topic: "ledger"},
			},
			LeaderCommittedOffset: noCommitSentinel,
		},
	})
	if ack := ps.lastAck(); ack == nil || !ack.MatchSucceeded {
		t.Fatalf("expected a successful ack after the rewind, got %+v", ack)
	}
	if term, ok := n.inflightBuf.PeekTerm(0); !ok || term != 4 {
		t.Fatalf("offset 0 term = %d (ok=%v), want 4 after rewind", term, ok)
	}
	if term, ok := n.inflightBuf.PeekTerm(1); !ok || term != 4 {
		t.Fatalf("offset 1 term = %d (ok=%v), want 4 after rewind", term, ok)
	}
}

func TestOldPeerDisconnectedOnConfigRemoval(t *testing.T) {
	n, _, ps := newTestNodeWithPeerSender(t)

	var peer2 wire.NodeID
	peer2[0] = 2
	peerEntry := wire.ConfigEntry{
		NodeID:      peer2,
		ClusterAddr: wire.Addr{IP: []byte{127, 0, 0, 1}, Port: 7201},
		ClientAddr:  wire.Addr{IP: []byte{127, 0, 0, 1}, Port: 7101},
	}
	n.handlePeerIdentity(PeerIdentityCommand{Peer: peer2, Entry: peerEntry})

	grownConfig := &wire.ClusterConfig{Entries: append(append([]wire.ConfigEntry{}, n.currentConfig.Entries...), peerEntry)}

	var client wire.ClientID
	client[0] = 1
	n.handleClientHandshake(ClientHandshakeCommand{Client: client})
	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationUpdateConfig, Nonce: 0, Config: grownConfig},
	})
	drainUntil(t, n, func() bool { return n.hasCommitted && len(n.currentConfig.Entries) == 2 })
	if _, ok := n.peers[peer2]; !ok {
		t.Fatalf("peer2 should still be a connected member after growing the config")
	}

	// Shrink back down to self alone. The removal's own offset needs
	// peer2's ack too, since peer2 is still a member of the config
	// being superseded.
	shrunkConfig := &wire.ClusterConfig{Entries: []wire.ConfigEntry{n.currentConfig.Entries[0]}}
	n.handleClientRequest(ClientRequestCommand{
		Client: client,
		Req:    &wire.ClientRequest{Kind: wire.MutationUpdateConfig, Nonce: 1, Config: shrunkConfig},
	})
	n.handlePeerReceived(PeerReceivedCommand{
		Peer:  peer2,
		Frame: &wire.ReceivedMutationsFrame{Term: n.term, AckedOffset: 1, MatchSucceeded: true},
	})
	drainUntil(t, n, func() bool { return len(n.currentConfig.Entries) == 1 })

	if _, ok := n.peers[peer2]; ok {
		t.Fatalf("peer2 should have been removed from n.peers once the removal committed")
	}
	found := false
	for _, id := range ps.disconnects {
		if id == peer2 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected reconcilePeers to disconnect peer2, disconnects = %v", ps.disconnects)
	}
}
