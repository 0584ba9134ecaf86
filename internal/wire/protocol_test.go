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

package wire

import "testing"

func TestClientRequestRoundTrip(t *testing.T) {
	req := &ClientRequest{Kind: MutationPut, Nonce: 42, Topic: "orders", Key: []byte("k"), Value: []byte("v")}
	encoded, err := req.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeClientRequest(encoded[1:])
	if err != nil {
		t.Fatalf("DecodeClientRequest: %v", err)
	}
	if decoded.Nonce != req.Nonce || decoded.Topic != req.Topic || string(decoded.Key) != "k" || string(decoded.Value) != "v" {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}
}

func TestCommittedFrameRoundTrip(t *testing.T) {
	c := &CommittedFrame{Nonce: 7, CommittedOffset: 100, ErrorCode: 0, ErrorMessage: ""}
	encoded := c.Encode()
	decoded, err := DecodeCommitted(encoded[1:])
	if err != nil {
		t.Fatalf("DecodeCommitted: %v", err)
	}
	if decoded.Nonce != c.Nonce || decoded.CommittedOffset != c.CommittedOffset {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}

	withErr := &CommittedFrame{Nonce: 8, CommittedOffset: 101, ErrorCode: 5, ErrorMessage: "projector panicked"}
	encoded2 := withErr.Encode()
	decoded2, err := DecodeCommitted(encoded2[1:])
	if err != nil {
		t.Fatalf("DecodeCommitted: %v", err)
	}
	if decoded2.ErrorCode != 5 || decoded2.ErrorMessage != "projector panicked" {
		t.Fatalf("round trip mismatch: got %+v", decoded2)
	}
}

func TestHandshakeAndReconnectRoundTrip(t *testing.T) {
	cid := sampleClientID()
	h := &HandshakeFrame{ClientID: cid}
	decodedH, err := DecodeHandshake(h.Encode()[1:])
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if decodedH.ClientID != cid {
		t.Fatalf("handshake client id mismatch")
	}

	r := &ReconnectFrame{ClientID: cid, LastKnownCommitOffset: 55, FirstResentNonce: 9}
	decodedR, err := DecodeReconnect(r.Encode()[1:])
	if err != nil {
		t.Fatalf("DecodeReconnect: %v", err)
	}
	if decodedR.LastKnownCommitOffset != 55 || decodedR.FirstResentNonce != 9 {
		t.Fatalf("reconnect round trip mismatch: got %+v", decodedR)
	}
}

func TestEventFrameAndConfigUpdateRoundTrip(t *testing.T) {
	ev := &Event{Kind: EventKeyPut, Term: 1, GlobalOffset: 1, LocalOffset: 0, Key: []byte("k"), Value: []byte("v")}
	f := &EventFrame{Topic: "orders", Event: ev}
	encoded, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeEventFrame(encoded[1:])
	if err != nil {
		t.Fatalf("DecodeEventFrame: %v", err)
	}
	if decoded.Topic != "orders" || decoded.Event.Kind != EventKeyPut {
		t.Fatalf("round trip mismatch: got %+v", decoded)
	}

	cfg := &ClusterConfig{Entries: []ConfigEntry{{NodeID: NodeID{1}, ClusterAddr: Addr{IP: []byte{1, 1, 1, 1}, Port: 1}, ClientAddr: Addr{IP: []byte{1, 1, 1, 1}, Port: 2}}}}
	cu := &ConfigUpdateFrame{Term: 3, Config: cfg}
	encodedCU, err := cu.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decodedCU, err := DecodeConfigUpdate(encodedCU[1:])
	if err != nil {
		t.Fatalf("DecodeConfigUpdate: %v", err)
	}
	if decodedCU.Term != 3 || !decodedCU.Config.Equal(cfg) {
		t.Fatalf("config update round trip mismatch: got %+v", decodedCU)
	}
}

func TestAppendMutationsHeartbeatRoundTrip(t *testing.T) {
	hb := &AppendMutationsFrame{Term: 4, PreviousOffset: 10, PreviousTerm: 3, LeaderCommittedOffset: 9}
	if !hb.IsHeartbeat() {
		t.Fatalf("expected heartbeat with no entries")
	}
	encoded, err := hb.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeAppendMutations(encoded[1:])
	if err != nil {
		t.Fatalf("DecodeAppendMutations: %v", err)
	}
	if !decoded.IsHeartbeat() || decoded.Term != 4 || decoded.PreviousOffset != 10 {
		t.Fatalf("heartbeat round trip mismatch: got %+v", decoded)
	}

	m := &Mutation{Kind: MutationPut, Term: 4, GlobalOffset: 11, Topic: "orders", Key: []byte("k"), Value: []byte("v")}
	withEntry := &AppendMutationsFrame{Term: 4, PreviousOffset: 10, PreviousTerm: 3, Entries: []*Mutation{m}, LeaderCommittedOffset: 10}
	encoded2, err := withEntry.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded2, err := DecodeAppendMutations(encoded2[1:])
	if err != nil {
		t.Fatalf("DecodeAppendMutations: %v", err)
	}
	if len(decoded2.Entries) != 1 || decoded2.Entries[0].GlobalOffset != 11 {
		t.Fatalf("append entries round trip mismatch: got %+v", decoded2)
	}
}

func TestVoteAndRequestVotesRoundTrip(t *testing.T) {
	rv := &RequestVotesFrame{CandidateTerm: 5, LastReceivedTerm: 4, LastReceivedOffset: 20}
	decodedRV, err := DecodeRequestVotes(rv.Encode()[1:])
	if err != nil {
		t.Fatalf("DecodeRequestVotes: %v", err)
	}
	if decodedRV.CandidateTerm != 5 || decodedRV.LastReceivedOffset != 20 {
		t.Fatalf("request votes round trip mismatch: got %+v", decodedRV)
	}

	v := &VoteFrame{Term: 5, Granted: true}
	decodedV, err := DecodeVote(v.Encode()[1:])
	if err != nil {
		t.Fatalf("DecodeVote: %v", err)
	}
	if !decodedV.Granted || decodedV.Term != 5 {
		t.Fatalf("vote round trip mismatch: got %+v", decodedV)
	}
}

func TestIdentityFrameRoundTrip(t *testing.T) {
	f := &IdentityFrame{
		NodeID:      NodeID{3},
		ClusterAddr: Addr{IP: []byte{10, 0, 0, 5}, Port: 7001},
		ClientAddr:  Addr{IP: []byte{10, 0, 0, 5}, Port: 7002},
	}
	encoded, err := f.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := DecodeIdentity(encoded[1:])
	if err != nil {
		t.Fatalf("DecodeIdentity: %v", err)
	}
	if decoded.NodeID != f.NodeID || !decoded.ClusterAddr.Equal(f.ClusterAddr) {
		t.Fatalf("identity round trip mismatch: got %+v", decoded)
	}
}
