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

// Package syncprogress tracks, per active cluster config, how far each
// member has acknowledged replication, and derives the consensus
// offset a leader may advance its commit index to (spec §4.4, §4.5).
//
// During a membership change there can be more than one active config
// at once (joint consensus): the old config and the new config both
// track progress independently, and the consensus offset is the
// minimum across every active config's own majority-acked offset.
package syncprogress

import "laminar/internal/wire"

// Progress tracks each member's acknowledged offset for one config.
type Progress struct {
	members map[wire.NodeID]uint64
	order   []wire.NodeID
}

// NewProgress creates a tracker for the given config, seeding every
// member (including self) at startOffset.
func NewProgress(cfg *wire.ClusterConfig, startOffset uint64) *Progress {
	p := &Progress{members: make(map[wire.NodeID]uint64, len(cfg.Entries))}
	for _, e := range cfg.Entries {
		p.members[e.NodeID] = startOffset
		p.order = append(p.order, e.NodeID)
	}
	return p
}

// Ack records that member has acknowledged up through offset. Acks
// only move forward; a stale, out-of-order ack is ignored.
func (p *Progress) Ack(member wire.NodeID, offset uint64) {
	if cur, ok := p.members[member]; !ok || offset > cur {
		p.members[member] = offset
	}
}

// Offset returns member's last acknowledged offset.
func (p *Progress) Offset(member wire.NodeID) (uint64, bool) {
	v, ok := p.members[member]
	return v, ok
}

// MajorityOffset returns the highest offset acknowledged by a
// majority of this config's members (the classic Raft matchIndex
// median).
func (p *Progress) MajorityOffset() uint64 {
	n := len(p.order)
	if n == 0 {
		return 0
	}
	offsets := make([]uint64, 0, n)
	for _, id := range p.order {
		offsets = append(offsets, p.members[id])
	}
	// insertion sort: config sizes are small (<=31 members).
	for i := 1; i < len(offsets); i++ {
		for j := i; j > 0 && offsets[j-1] > offsets[j]; j-- {
			offsets[j-1], offsets[j] = offsets[j], offsets[j-1]
		}
	}
	return offsets[(n-1)/2]
}

// Members returns the node IDs this progress tracks.
func (p *Progress) Members() []wire.NodeID { return p.order }

// Tracker aggregates every currently active config's Progress. More
// than one active Progress at a time means the cluster is in joint
// consensus.
type Tracker struct {
	active []*Progress
}

// NewTracker creates a tracker starting with a single active config.
func NewTracker(cfg *wire.ClusterConfig, startOffset uint64) *Tracker {
	return &Tracker{active: []*Progress{NewProgress(cfg, startOffset)}}
}

// BeginJointConsensus adds a second active config (the new one),
// seeded at startOffset, alongside whatever configs are already
// active. Spec §4.4 calls for this the moment an UPDATE_CONFIG
// mutation is appended to the log, before it commits.
func (t *Tracker) BeginJointConsensus(cfg *wire.ClusterConfig, startOffset uint64) {
	t.active = append(t.active, NewProgress(cfg, startOffset))
}

// CompleteJointConsensus drops every active config except the most
// recently added one, called once an UPDATE_CONFIG mutation commits.
func (t *Tracker) CompleteJointConsensus() {
	if len(t.active) == 0 {
		return
	}
	t.active = t.active[len(t.active)-1:]
}

// IsJointConsensus reports whether more than one config is active.
func (t *Tracker) IsJointConsensus() bool { return len(t.active) > 1 }

// Ack records member's ack against every active config that lists it.
func (t *Tracker) Ack(member wire.NodeID, offset uint64) {
	for _, p := range t.active {
		if _, ok := p.Offset(member); ok {
			p.Ack(member, offset)
		}
	}
}

// ConsensusOffset is the minimum, over every active config, of that
// config's own majority-acknowledged offset. Spec §4.4: a mutation is
// only safe to commit once it is covered by every active config's
// majority, so the binding constraint is the slowest config.
func (t *Tracker) ConsensusOffset() uint64 {
	if len(t.active) == 0 {
		return 0
	}
	min := t.active[0].MajorityOffset()
	for _, p := range t.active[1:] {
		if m := p.MajorityOffset(); m < min {
			min = m
		}
	}
	return min
}

// ActiveConfigs returns the currently active Progress trackers, oldest
// first.
func (t *Tracker) ActiveConfigs() []*Progress { return t.active }
