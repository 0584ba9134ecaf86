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

// defaultProjectorRuntime is the runtime identifier programmable
// topics are registered under when no operator-specified runtime is
// configured (spec §4.7 leaves runtime selection to the host; Laminar
// hosts exactly one for now).
const defaultProjectorRuntime = "native"

// nextToSubmit is the lowest global offset not yet submitted to the
// log store for durable commit. It runs ahead of last_committed_offset
// (spec §4.4): an offset can be submitted — and its submission
// recorded here — well before its LogAppendDoneCommand comes back and
// actually advances the durably-committed point.
func (n *NodeState) nextToSubmit() uint64 {
	if !n.hasSubmitted {
		return 0
	}
	return n.submittedOffset + 1
}

// advanceCommit is the leader's commit engine (spec §4.4): it computes
// the consensus offset across every active config and, subject to the
// leader-completeness guard, submits every not-yet-submitted entry up
// to it for durable commit. The visible commit effects — advancing
// last_committed_offset, popping the in-flight buffer, and
// acknowledging clients — do not happen here; they happen in
// handleLogAppendDone once the log store confirms durability (spec
// §4.4 step 3, §4.9: "never acknowledge an unpersisted commit").
func (n *NodeState) advanceCommit() {
	if n.role != RoleLeader {
		return
	}
	consensus := n.tracker.ConsensusOffset()
	start := n.nextToSubmit()
	if start > consensus {
		return
	}

	// Leader completeness: never commit an older-term entry on the
	// strength of a current-term majority alone. Wait until the
	// current term itself reaches consensus.
	if entry := n.inflightBuf.Peek(consensus); entry != nil && entry.Term != n.term {
		return
	}

	for offset := start; offset <= consensus; offset++ {
		m := n.inflightBuf.Peek(offset)
		if m == nil {
			continue
		}
		n.submitCommit(m)
		n.hasSubmitted = true
		n.submittedOffset = offset
	}
}

// applyFollowerCommit submits every entry up to what the leader
// reported as committed for durable commit, mirroring the leader's
// projection deterministically (spec §4.4, §4.7). As on the leader,
// the visible commit effects wait for handleLogAppendDone.
func (n *NodeState) applyFollowerCommit(leaderCommitted uint64) {
	if leaderCommitted == noCommitSentinel {
		return
	}
	start := n.nextToSubmit()
	if start > leaderCommitted {
		return
	}
	for offset := start; offset <= leaderCommitted; offset++ {
		m := n.inflightBuf.Peek(offset)
		if m == nil {
			continue
		}
		n.submitCommit(m)
		n.hasSubmitted = true
		n.submittedOffset = offset
	}
}

// submitCommit projects one newly-consensus-reached mutation and
// submits it for durable append. It is shared by the leader's and
// every follower's commit path so the two can never diverge (spec
// §4.7: projection must be identical across replicas). Projection
// itself runs now, since it is a pure function of deterministic state;
// only the client- and listener-visible effects wait for durability.
func (n *NodeState) submitCommit(m *wire.Mutation) {
	if m.Kind == wire.MutationUpdateConfig {
		n.submitConfigChange(m)
		return
	}

	events, perr := n.topics.Apply(m, defaultProjectorRuntime)
	errMsg := ""
	if perr != nil {
		errMsg = perr.Error()
	}
	persisted := map[string][]*wire.Event(nil)
	if len(events) > 0 {
		persisted = map[string][]*wire.Event{m.Topic: events}
	}
	n.store.AppendAsync(m, persisted, func(mm *wire.Mutation, err error) {
		n.Enqueue(LogAppendDoneCommand{Mutation: mm, Events: events, ErrMsg: errMsg, Err: err})
	})
}

// submitConfigChange submits a committed UPDATE_CONFIG mutation for
// durable append, capturing the config it supersedes so
// handleLogAppendDone can install the new config, collapse joint
// consensus, and reconcile peer connections once durability is
// confirmed (spec §4.4, §4.8, §9).
func (n *NodeState) submitConfigChange(m *wire.Mutation) {
	oldConfig := n.currentConfig
	n.store.AppendAsync(m, nil, func(mm *wire.Mutation, err error) {
		n.Enqueue(LogAppendDoneCommand{Mutation: mm, ConfigChange: true, OldConfig: oldConfig, Err: err})
	})
}

// reconcilePeers connects to members added by a config change and
// disconnects members dropped by it (spec §4.8 "old peers are
// disconnected once the membership change they are excluded by
// commits").
func (n *NodeState) reconcilePeers(oldConfig, newConfig *wire.ClusterConfig) {
	newMembers := newConfig.Members()
	for _, e := range newConfig.Entries {
		if e.NodeID == n.self {
			continue
		}
		if _, ok := n.peers[e.NodeID]; !ok {
			n.peers[e.NodeID] = &peerState{id: e.NodeID, entry: e}
			n.peerSender.Connect(e)
		}
	}
	if oldConfig == nil {
		return
	}
	for _, e := range oldConfig.Entries {
		if e.NodeID == n.self {
			continue
		}
		if _, stillMember := newMembers[e.NodeID]; !stillMember {
			n.peerSender.Disconnect(e.NodeID)
			delete(n.peers, e.NodeID)
		}
	}
}

// ackClient notifies a locally-connected client that its mutation
// committed. Entries replicated from a client connected to a
// different node are silently skipped: this node has no session for
// them.
func (n *NodeState) ackClient(m *wire.Mutation, errMsg string) {
	if m.ClientID.IsZero() {
		return
	}
	if _, ok := n.clients[m.ClientID]; !ok {
		return
	}
	n.clientSender.SendCommitted(m.ClientID, m.Nonce, m.GlobalOffset, errMsg)
}

// broadcastEvents delivers a committed mutation's projected events to
// every listener watching that topic (spec §4.8).
func (n *NodeState) broadcastEvents(topic string, events []*wire.Event) {
	if len(events) == 0 {
		return
	}
	for client, subs := range n.listeners {
		for _, sub := range subs {
			if sub.topic != topic {
				continue
			}
			for _, ev := range events {
				n.clientSender.SendEvent(client, topic, ev)
			}
		}
	}
}

// broadcastConfigUpdate notifies every listener of a newly committed
// config, out of band from any particular topic stream, and with
// priority over queued topic events (spec §4.8).
func (n *NodeState) broadcastConfigUpdate(term uint64, cfg *wire.ClusterConfig) {
	for client := range n.listeners {
		n.clientSender.SendConfigUpdate(client, term, cfg)
	}
}

// handleLogAppendDone reacts to a durable append completing: this is
// where a commit actually becomes visible (spec §4.4 step 3, §4.9
// "never acknowledge an unpersisted commit"). It installs a committed
// config change, advances the commit point, pops the in-flight
// buffer, acknowledges the authoring client, and broadcasts to
// listeners — all only now that the append is confirmed durable. A
// failed append is treated as fatal, since the log store is the
// single source of truth once a mutation commits.
func (n *NodeState) handleLogAppendDone(c LogAppendDoneCommand) {
	n.errIOOrFatal(c.Err)

	m := c.Mutation
	if c.ConfigChange {
		n.currentConfig = m.Config
		n.tracker.CompleteJointConsensus()
		n.reconcilePeers(c.OldConfig, m.Config)
	}

	n.hasCommitted = true
	n.lastCommittedOffset = m.GlobalOffset
	n.committedTerm = m.Term
	if m.Term == n.term {
		n.currentTermHasCommit = true
	}
	n.inflightBuf.PopCommitted(m.GlobalOffset)

	n.ackClient(m, c.ErrMsg)
	if c.ConfigChange {
		n.broadcastConfigUpdate(m.Term, m.Config)
	} else {
		n.broadcastEvents(m.Topic, c.Events)
	}
}
