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

// PeerStatus summarizes one peer's replication progress for the
// operator console.
type PeerStatus struct {
	NodeID       wire.NodeID
	Connected    bool
	LastReceived uint64
	NextToSend   uint64
}

// Status is a point-in-time snapshot of the core's state, safe to
// build only from inside the Run goroutine (see StatusQueryCommand for
// how the console obtains one without touching NodeState directly).
type Status struct {
	Self                wire.NodeID
	Role                Role
	Term                uint64
	Config              *wire.ClusterConfig
	JointConsensus      bool
	InflightLen         int
	HasCommitted        bool
	LastCommittedOffset uint64
	Peers               []PeerStatus
}

// Snapshot builds a Status from the current state. It must only be
// called from the Run goroutine, e.g. from a console-originated
// command handler.
func (n *NodeState) Snapshot() Status {
	peers := make([]PeerStatus, 0, len(n.peers))
	for id, p := range n.peers {
		if id == n.self {
			continue
		}
		peers = append(peers, PeerStatus{
			NodeID: id, Connected: p.connected, LastReceived: p.lastReceived, NextToSend: p.nextToSend,
		})
	}
	return Status{
		Self:                n.self,
		Role:                n.role,
		Term:                n.term,
		Config:              n.currentConfig,
		JointConsensus:      n.tracker.IsJointConsensus(),
		InflightLen:         n.inflightBuf.Len(),
		HasCommitted:        n.hasCommitted,
		LastCommittedOffset: n.lastCommittedOffset,
		Peers:               peers,
	}
}
