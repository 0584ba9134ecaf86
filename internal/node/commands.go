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

// Command is anything that can be enqueued onto a NodeState's command
// queue. The two gateways and the log store each build Commands from
// their own events (a decoded frame, a completed disk operation) and
// enqueue them; NodeState is the only thing that ever reads the
// queue.
type Command interface{ isCommand() }

// StopCommand asks Run to return after finishing whatever is already
// queued ahead of it.
type StopCommand struct{}

func (StopCommand) isCommand() {}

// ClientHandshakeCommand opens a new client session.
type ClientHandshakeCommand struct {
	Client wire.ClientID
}

func (ClientHandshakeCommand) isCommand() {}

// ClientReconnectCommand resumes a session per spec §4.6.
type ClientReconnectCommand struct {
	Client                wire.ClientID
	LastKnownCommitOffset uint64
	FirstResentNonce      uint64
}

func (ClientReconnectCommand) isCommand() {}

// ClientRequestCommand proposes a mutation.
type ClientRequestCommand struct {
	Client wire.ClientID
	Req    *wire.ClientRequest
}

func (ClientRequestCommand) isCommand() {}

// ClientWatchCommand subscribes a connection as a topic listener.
type ClientWatchCommand struct {
	Client            wire.ClientID
	Topic             string
	LastReceivedLocal uint64
}

func (ClientWatchCommand) isCommand() {}

// ClientDisconnectCommand tears down a client's session and any
// listener subscriptions.
type ClientDisconnectCommand struct {
	Client wire.ClientID
}

func (ClientDisconnectCommand) isCommand() {}

// PeerIdentityCommand reports a newly-connected peer's identity.
type PeerIdentityCommand struct {
	Peer  wire.NodeID
	Entry wire.ConfigEntry
}

func (PeerIdentityCommand) isCommand() {}

// PeerAppendCommand delivers a replication RPC from a leader.
type PeerAppendCommand struct {
	Peer  wire.NodeID
	Frame *wire.AppendMutationsFrame
}

func (PeerAppendCommand) isCommand() {}

// PeerReceivedCommand delivers a follower's ack to the leader.
type PeerReceivedCommand struct {
	Peer  wire.NodeID
	Frame *wire.ReceivedMutationsFrame
}

func (PeerReceivedCommand) isCommand() {}

// PeerPeerStateCommand delivers an out-of-band progress report.
type PeerPeerStateCommand struct {
	Peer  wire.NodeID
	Frame *wire.PeerStateFrame
}

func (PeerPeerStateCommand) isCommand() {}

// PeerRequestVotesCommand delivers a candidate's vote solicitation.
type PeerRequestVotesCommand struct {
	Peer  wire.NodeID
	Frame *wire.RequestVotesFrame
}

func (PeerRequestVotesCommand) isCommand() {}

// PeerVoteCommand delivers a peer's vote decision.
type PeerVoteCommand struct {
	Peer  wire.NodeID
	Frame *wire.VoteFrame
}

func (PeerVoteCommand) isCommand() {}

// PeerDisconnectCommand reports that a peer connection dropped.
type PeerDisconnectCommand struct {
	Peer wire.NodeID
}

func (PeerDisconnectCommand) isCommand() {}

// LogAppendDoneCommand reports the outcome of a durable append
// submitted by the commit engine, carrying everything
// handleLogAppendDone needs to apply that mutation's commit effects
// now that durability is confirmed (spec §4.4 step 3): the projected
// events and any projector error for a topic mutation, or the
// superseded config for an UPDATE_CONFIG mutation.
type LogAppendDoneCommand struct {
	Mutation     *wire.Mutation
	Events       []*wire.Event
	ErrMsg       string
	ConfigChange bool
	OldConfig    *wire.ClusterConfig
	Err          error
}

func (LogAppendDoneCommand) isCommand() {}

// LogFetchDoneCommand reports the outcome of a stale-offset fetch
// issued to catch up a lagging peer.
type LogFetchDoneCommand struct {
	Offset   uint64
	Mutation *wire.Mutation
	Err      error
	ForPeer  wire.NodeID
}

func (LogFetchDoneCommand) isCommand() {}

// StatusQueryCommand asks the core to deliver a point-in-time Status
// snapshot over Reply. The console is the only collaborator that uses
// this; it exists so the console never reads NodeState fields from its
// own goroutine.
type StatusQueryCommand struct {
	Reply chan Status
}

func (StatusQueryCommand) isCommand() {}
