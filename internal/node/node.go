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
Package node implements NodeState, the single-threaded-cooperative
core described in spec §2, §4 and §5. One goroutine (Run) drains an
ordered command queue; every command handler runs to completion before
the next is dequeued, so nothing in this package needs a lock. The
four collaborators — Client Gateway, Peer Gateway, Log Store, Console —
each own their own goroutines and talk to the core exclusively by
enqueueing Commands or by NodeState calling a collaborator-supplied
Sender interface fire-and-forget.
*/
package node

import (
	"context"
	"math/rand"
	"time"

	"laminar/internal/errs"
	"laminar/internal/inflight"
	"laminar/internal/logging"
	"laminar/internal/logstore"
	"laminar/internal/syncprogress"
	"laminar/internal/topic"
	"laminar/internal/wire"
)

// Role is one of the three Raft-style roles (spec §4.1).
type Role int

const (
	RoleFollower Role = iota
	RoleCandidate
	RoleLeader
)

func (r Role) String() string {
	switch r {
	case RoleLeader:
		return "LEADER"
	case RoleCandidate:
		return "CANDIDATE"
	default:
		return "FOLLOWER"
	}
}

// ClientSender is the Client Gateway's fire-and-forget outbound API,
// called by the core. Every method must return without blocking on
// network I/O.
type ClientSender interface {
	SendReceived(client wire.ClientID, nonce, committedOffset uint64)
	SendCommitted(client wire.ClientID, nonce, committedOffset uint64, errMsg string)
	SendRedirect(client wire.ClientID, leaderClientAddr wire.Addr)
	SendError(client wire.ClientID, code uint16, msg string)
	SendClientReady(client wire.ClientID, nextNonce uint64)
	SendEvent(listener wire.ClientID, topic string, ev *wire.Event)
	SendConfigUpdate(listener wire.ClientID, term uint64, cfg *wire.ClusterConfig)
	Disconnect(client wire.ClientID)
}

// PeerSender is the Peer Gateway's fire-and-forget outbound API.
type PeerSender interface {
	SendIdentity(peer wire.NodeID, self wire.ConfigEntry)
	SendAppend(peer wire.NodeID, frame *wire.AppendMutationsFrame)
	SendReceivedMutations(peer wire.NodeID, frame *wire.ReceivedMutationsFrame)
	SendRequestVotes(peer wire.NodeID, frame *wire.RequestVotesFrame)
	SendVote(peer wire.NodeID, frame *wire.VoteFrame)
	Connect(entry wire.ConfigEntry)
	Disconnect(peer wire.NodeID)
}

// noCommitSentinel marks "nothing to report" in AppendMutationsFrame's
// PreviousOffset (no previous entry exists yet) and
// LeaderCommittedOffset (the leader has not committed anything yet),
// and in a follower's ack (nothing durably received yet).
const noCommitSentinel = ^uint64(0)

// maxAppendBatch bounds how many entries a single AppendMutations RPC
// carries, so one slow peer catching up from far behind cannot block
// a single frame from ever completing.
const maxAppendBatch = 256

// clientSession tracks one connected client's nonce bookkeeping.
type clientSession struct {
	id            wire.ClientID
	expectedNonce uint64
	replaying     bool
}

// bumpNonceSeen records that nonce was observed authored by this
// client during reconnect replay (spec §4.6), advancing expectedNonce
// past it so CLIENT_READY reports the true next nonce regardless of
// what the client itself claimed when reconnecting.
func (s *clientSession) bumpNonceSeen(nonce uint64) {
	if nonce+1 > s.expectedNonce {
		s.expectedNonce = nonce + 1
	}
}

// listenerSub tracks one listener's subscription.
type listenerSub struct {
	id    wire.ClientID
	topic string
}

// peerState is the leader's view of one downstream/upstream peer
// (spec §3 "Downstream peer state").
type peerState struct {
	id           wire.NodeID
	entry        wire.ConfigEntry
	connected    bool
	writable     bool
	lastReceived uint64
	lastSent     uint64
	nextToSend   uint64
}

// pendingFetch coalesces concurrent fetches for the same stale offset
// (spec §4.5: "first requester issues the fetch; subsequent waiters
// attach to the pending fetch"). NodeState keeps one entry per offset
// in pendingFetches so it does not resubmit an outstanding fetch; when
// the fetch completes only the peer that issued it is retried at once,
// and other peers pick up the cached term on their next append.
type pendingFetch struct {
	waiters []wire.NodeID
}

// NodeState is the core. It must only be touched from the Run
// goroutine.
type NodeState struct {
	self       wire.NodeID
	selfClient wire.Addr
	selfCluster wire.Addr

	log *logging.Logger

	role Role
	term uint64
	votedForTerm uint64 // 0 means "no vote cast this term"
	votedFor     wire.NodeID

	currentConfig *wire.ClusterConfig
	pendingConfigOffset uint64 // 0 when no UPDATE_CONFIG is in flight
	pendingConfig       *wire.ClusterConfig

	inflightBuf *inflight.Buffer
	tracker     *syncprogress.Tracker
	topics      *topic.Table
	store       *logstore.Store

	nextGlobalOffset    uint64
	submittedOffset     uint64 // highest offset submitted to the log store; may not be durable yet
	hasSubmitted        bool
	lastCommittedOffset uint64 // highest offset confirmed durable; only advanced from handleLogAppendDone
	committedTerm        uint64
	hasCommitted         bool
	currentTermHasCommit bool

	leaderID   wire.NodeID
	haveLeader bool

	clients   map[wire.ClientID]*clientSession
	listeners map[wire.ClientID][]listenerSub
	peers     map[wire.NodeID]*peerState

	pendingFetches map[uint64]*pendingFetch
	fetchedTerms   map[uint64]uint64

	votesGranted map[wire.NodeID]bool

	clientSender ClientSender
	peerSender   PeerSender

	electionTimeoutMin time.Duration
	electionTimeoutMax time.Duration
	electionTimeoutCur time.Duration
	heartbeatInterval  time.Duration
	lastLeaderContact  time.Time
	rng                *rand.Rand

	cmdCh chan Command
}

// Config bundles the construction-time dependencies for a NodeState.
type Config struct {
	Self        wire.NodeID
	ClientAddr  wire.Addr
	ClusterAddr wire.Addr
	Store       *logstore.Store
	Topics      *topic.Table
	ClientSender ClientSender
	PeerSender   PeerSender
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration
}

// New creates a NodeState bootstrapped as the sole member of a
// single-node cluster (spec §4.1: "Initial state is LEADER of a
// single-node cluster whose only member is self").
func New(cfg Config) *NodeState {
	bootstrap := &wire.ClusterConfig{Entries: []wire.ConfigEntry{{
		NodeID:      cfg.Self,
		ClusterAddr: cfg.ClusterAddr,
		ClientAddr:  cfg.ClientAddr,
	}}}

	n := &NodeState{
		self:        cfg.Self,
		selfClient:  cfg.ClientAddr,
		selfCluster: cfg.ClusterAddr,
		log:         logging.NewLogger("node"),
		role:        RoleLeader,
		term:        1,
		currentConfig: bootstrap,
		inflightBuf: inflight.New(0),
		tracker:     syncprogress.NewTracker(bootstrap, 0),
		topics:      cfg.Topics,
		store:       cfg.Store,
		nextGlobalOffset: 0,
		clients:     make(map[wire.ClientID]*clientSession),
		listeners:   make(map[wire.ClientID][]listenerSub),
		peers:       make(map[wire.NodeID]*peerState),
		pendingFetches: make(map[uint64]*pendingFetch),
		fetchedTerms: make(map[uint64]uint64),
		votesGranted: make(map[wire.NodeID]bool),
		clientSender: cfg.ClientSender,
		peerSender:   cfg.PeerSender,
		electionTimeoutMin: cfg.ElectionTimeoutMin,
		electionTimeoutMax: cfg.ElectionTimeoutMax,
		heartbeatInterval:  cfg.HeartbeatInterval,
		rng:         rand.New(rand.NewSource(int64(cfg.Self[0])<<8 | int64(cfg.Self[1]))),
		cmdCh:       make(chan Command, 4096),
		lastLeaderContact: time.Now(),
	}
	// Single-node bootstrap: self's own progress already satisfies
	// quorum trivially; leader-completeness still requires a
	// current-term commit before anything commits, same as any leader.
	n.peers[cfg.Self] = &peerState{id: cfg.Self, entry: bootstrap.Entries[0], connected: true, writable: true}
	n.haveLeader = true
	n.leaderID = cfg.Self
	n.resetElectionTimer()
	return n
}

// Enqueue posts a command onto the core's queue. Safe to call from any
// goroutine; this is the only thread-safe entry point into NodeState.
func (n *NodeState) Enqueue(cmd Command) {
	n.cmdCh <- cmd
}

// Run drains the command queue until ctx is canceled or a StopCommand
// is processed. It must be called from exactly one goroutine.
func (n *NodeState) Run(ctx context.Context) {
	ticker := time.NewTicker(n.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n.handleTick(now)
		case cmd := <-n.cmdCh:
			if n.dispatch(cmd) {
				return
			}
		}
	}
}

// dispatch handles one command to completion. It returns true if the
// core should stop.
func (n *NodeState) dispatch(cmd Command) (stop bool) {
	switch c := cmd.(type) {
	case StopCommand:
		n.handleStop()
		return true
	case ClientHandshakeCommand:
		n.handleClientHandshake(c)
	case ClientReconnectCommand:
		n.handleClientReconnect(c)
	case ClientRequestCommand:
		n.handleClientRequest(c)
	case ClientWatchCommand:
		n.handleClientWatch(c)
	case ClientDisconnectCommand:
		n.handleClientDisconnect(c)
	case PeerIdentityCommand:
		n.handlePeerIdentity(c)
	case PeerAppendCommand:
		n.handlePeerAppend(c)
	case PeerReceivedCommand:
		n.handlePeerReceived(c)
	case PeerPeerStateCommand:
		n.handlePeerPeerState(c)
	case PeerRequestVotesCommand:
		n.handlePeerRequestVotes(c)
	case PeerVoteCommand:
		n.handlePeerVote(c)
	case PeerDisconnectCommand:
		n.handlePeerDisconnect(c)
	case LogAppendDoneCommand:
		n.handleLogAppendDone(c)
	case LogFetchDoneCommand:
		n.handleLogFetchDone(c)
	case replayFetchCommand:
		n.handleReplayFetch(c)
	case StatusQueryCommand:
		c.Reply <- n.Snapshot()
	default:
		n.log.Warn("dropping unrecognized command")
	}
	return false
}

func (n *NodeState) handleStop() {
	n.log.Info("stopping", "role", n.role.String())
}

func (n *NodeState) errIOOrFatal(err error) {
	if err != nil {
		n.log.Error("log store failure, terminating", "error", err.Error())
		panic(errs.StorageErr("fatal log store failure").WithCause(err))
	}
}
