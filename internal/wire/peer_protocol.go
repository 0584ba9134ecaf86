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
Peer protocol frames: the replication and leader-election RPCs
exchanged between cluster members.
*/
package wire

// PeerMsgType identifies a peer<->peer protocol frame.
type PeerMsgType byte

const (
	PMsgIdentity         PeerMsgType = 0x20 // both ways: announce node id + addresses on connect
	PMsgAppendMutations  PeerMsgType = 0x21 // leader -> follower: replicate entries (empty Entries == heartbeat)
	PMsgReceivedMutations PeerMsgType = 0x22 // follower -> leader: ack up to an offset
	PMsgRequestVotes     PeerMsgType = 0x23 // candidate -> peer: solicit a vote
	PMsgVote             PeerMsgType = 0x24 // peer -> candidate: vote decision
	PMsgPeerState        PeerMsgType = 0x25 // follower -> leader: out-of-band progress report
)

// IdentityFrame is the first frame sent on a new peer connection in
// either direction, so the accepting side learns which cluster member
// just dialed in.
type IdentityFrame struct {
	NodeID      NodeID
	ClusterAddr Addr
	ClientAddr  Addr
}

func (f *IdentityFrame) Encode() ([]byte, error) {
	buf := []byte{byte(PMsgIdentity)}
	buf = append(buf, f.NodeID[:]...)
	var err error
	if buf, err = f.ClusterAddr.encode(buf); err != nil {
		return nil, err
	}
	if buf, err = f.ClientAddr.encode(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func DecodeIdentity(b []byte) (*IdentityFrame, error) {
	if len(b) < 16 {
		return nil, ErrTruncated
	}
	f := &IdentityFrame{}
	copy(f.NodeID[:], b[:16])
	b = b[16:]
	var err error
	if f.ClusterAddr, b, err = decodeAddr(b); err != nil {
		return nil, err
	}
	if f.ClientAddr, _, err = decodeAddr(b); err != nil {
		return nil, err
	}
	return f, nil
}

// AppendMutationsFrame is the replication RPC (spec §4.5). A frame with
// zero Entries is a heartbeat: it still carries the leader-completeness
// fields so followers can advance their view of the commit offset
// between real appends.
type AppendMutationsFrame struct {
	Term                  uint64
	PreviousOffset        uint64
	PreviousTerm          uint64
	Entries               []*Mutation
	LeaderCommittedOffset uint64
}

func (f *AppendMutationsFrame) Encode() ([]byte, error) {
	buf := []byte{byte(PMsgAppendMutations)}
	buf = putUint64(buf, f.Term)
	buf = putUint64(buf, f.PreviousOffset)
	buf = putUint64(buf, f.PreviousTerm)
	buf = putUint64(buf, f.LeaderCommittedOffset)
	var countBuf [2]byte
	count := len(f.Entries)
	countBuf[0] = byte(count >> 8)
	countBuf[1] = byte(count)
	buf = append(buf, countBuf[:]...)
	for _, m := range f.Entries {
		encoded, err := m.Encode()
		if err != nil {
			return nil, err
		}
		buf = putBytes16(buf, encoded)
	}
	return buf, nil
}

func DecodeAppendMutations(b []byte) (*AppendMutationsFrame, error) {
	f := &AppendMutationsFrame{}
	var err error
	if f.Term, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if f.PreviousOffset, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if f.PreviousTerm, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if f.LeaderCommittedOffset, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if len(b) < 2 {
		return nil, ErrTruncated
	}
	count := int(b[0])<<8 | int(b[1])
	b = b[2:]
	f.Entries = make([]*Mutation, count)
	for i := 0; i < count; i++ {
		var raw []byte
		if raw, b, err = getBytes16(b); err != nil {
			return nil, err
		}
		m, err := DecodeMutation(raw)
		if err != nil {
			return nil, err
		}
		f.Entries[i] = m
	}
	return f, nil
}

// IsHeartbeat reports whether this append carries no new entries.
func (f *AppendMutationsFrame) IsHeartbeat() bool { return len(f.Entries) == 0 }

// ReceivedMutationsFrame is a follower's ack of replicated entries.
type ReceivedMutationsFrame struct {
	Term          uint64
	AckedOffset   uint64
	MatchSucceeded bool
}

func (f *ReceivedMutationsFrame) Encode() []byte {
	buf := []byte{byte(PMsgReceivedMutations)}
	buf = putUint64(buf, f.Term)
	buf = putUint64(buf, f.AckedOffset)
	if f.MatchSucceeded {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func DecodeReceivedMutations(b []byte) (*ReceivedMutationsFrame, error) {
	f := &ReceivedMutationsFrame{}
	var err error
	if f.Term, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if f.AckedOffset, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if len(b) < 1 {
		return nil, ErrTruncated
	}
	f.MatchSucceeded = b[0] != 0
	return f, nil
}

// RequestVotesFrame is the leader-election RPC (spec §4.1).
type RequestVotesFrame struct {
	CandidateTerm    uint64
	LastReceivedTerm uint64
	LastReceivedOffset uint64
}

func (f *RequestVotesFrame) Encode() []byte {
	buf := []byte{byte(PMsgRequestVotes)}
	buf = putUint64(buf, f.CandidateTerm)
	buf = putUint64(buf, f.LastReceivedTerm)
	buf = putUint64(buf, f.LastReceivedOffset)
	return buf
}

func DecodeRequestVotes(b []byte) (*RequestVotesFrame, error) {
	f := &RequestVotesFrame{}
	var err error
	if f.CandidateTerm, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if f.LastReceivedTerm, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if f.LastReceivedOffset, _, err = getUint64(b); err != nil {
		return nil, err
	}
	return f, nil
}

// VoteFrame is a peer's response to a RequestVotesFrame.
type VoteFrame struct {
	Term    uint64
	Granted bool
}

func (f *VoteFrame) Encode() []byte {
	buf := []byte{byte(PMsgVote)}
	buf = putUint64(buf, f.Term)
	if f.Granted {
		buf = append(buf, 1)
	} else {
		buf = append(buf, 0)
	}
	return buf
}

func DecodeVote(b []byte) (*VoteFrame, error) {
	f := &VoteFrame{}
	var err error
	if f.Term, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if len(b) < 1 {
		return nil, ErrTruncated
	}
	f.Granted = b[0] != 0
	return f, nil
}

// PeerStateFrame is an out-of-band progress report a follower may send
// a leader outside the regular ack path (e.g. right after reconnecting,
// before the next heartbeat round trip).
type PeerStateFrame struct {
	LastReceivedOffset uint64
}

func (f *PeerStateFrame) Encode() []byte {
	buf := []byte{byte(PMsgPeerState)}
	return putUint64(buf, f.LastReceivedOffset)
}

func DecodePeerState(b []byte) (*PeerStateFrame, error) {
	n, _, err := getUint64(b)
	if err != nil {
		return nil, err
	}
	return &PeerStateFrame{LastReceivedOffset: n}, nil
}
