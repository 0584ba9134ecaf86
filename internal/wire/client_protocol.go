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
Client protocol frames.

Every frame on a client connection starts with a 1-byte message type,
followed by a type-specific body built from the same big-endian,
length-prefixed primitives as the mutation/event encodings. Frames are
exchanged inside the generic §6 length-prefixed wire frame.
*/
package wire

// ClientMsgType identifies a client<->server protocol frame.
type ClientMsgType byte

const (
	CMsgHandshake    ClientMsgType = 0x01 // client -> server: open a session
	CMsgReconnect    ClientMsgType = 0x02 // client -> server: resume a session
	CMsgRequest      ClientMsgType = 0x03 // client -> server: propose a mutation
	CMsgWatch        ClientMsgType = 0x04 // client -> server: subscribe as a listener
	CMsgReceived     ClientMsgType = 0x10 // server -> client: mutation accepted into the log
	CMsgCommitted    ClientMsgType = 0x11 // server -> client: mutation committed
	CMsgRedirect     ClientMsgType = 0x12 // server -> client: contact this leader instead
	CMsgError        ClientMsgType = 0x13 // server -> client: protocol-level error
	CMsgClientReady  ClientMsgType = 0x14 // server -> client: session ready (after handshake or reconnect replay)
	CMsgEvent        ClientMsgType = 0x15 // server -> listener: one committed event
	CMsgConfigUpdate ClientMsgType = 0x16 // server -> listener: config change broadcast
)

// ClientRequest is the body of a CMsgRequest frame: everything the
// client supplies for a mutation before the server stamps a term and
// global offset onto it.
type ClientRequest struct {
	Kind   MutationKind
	Nonce  uint64
	Topic  string
	Code   []byte
	Args   []byte
	Key    []byte
	Value  []byte
	Config *ClusterConfig
}

// Encode serializes a ClientRequest.
func (r *ClientRequest) Encode() ([]byte, error) {
	buf := []byte{byte(CMsgRequest), byte(r.Kind)}
	buf = putUint64(buf, r.Nonce)
	if r.Kind != MutationUpdateConfig {
		if err := validateTopic(r.Topic); err != nil {
			return nil, err
		}
		buf = putTopic(buf, r.Topic)
	}
	switch r.Kind {
	case MutationPut:
		buf = putBytes16(buf, r.Key)
		buf = putBytes16(buf, r.Value)
	case MutationDelete:
		buf = putBytes16(buf, r.Key)
	case MutationCreateTopic:
		buf = putBytes16(buf, r.Code)
		buf = putBytes16(buf, r.Args)
	case MutationDestroyTopic:
	case MutationUpdateConfig:
		cfg := r.Config
		if cfg == nil {
			cfg = &ClusterConfig{}
		}
		encoded, err := cfg.Encode()
		if err != nil {
			return nil, err
		}
		buf = append(buf, encoded...)
	default:
		return nil, ErrUnknownKind
	}
	return buf, nil
}

// DecodeClientRequest parses the body following the CMsgRequest type byte.
func DecodeClientRequest(b []byte) (*ClientRequest, error) {
	if len(b) < 1 {
		return nil, ErrTruncated
	}
	r := &ClientRequest{Kind: MutationKind(b[0])}
	b = b[1:]
	var err error
	if r.Nonce, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if r.Kind != MutationUpdateConfig {
		if r.Topic, b, err = getTopic(b); err != nil {
			return nil, err
		}
	}
	switch r.Kind {
	case MutationPut:
		if r.Key, b, err = getBytes16(b); err != nil {
			return nil, err
		}
		if r.Value, b, err = getBytes16(b); err != nil {
			return nil, err
		}
	case MutationDelete:
		if r.Key, b, err = getBytes16(b); err != nil {
			return nil, err
		}
	case MutationCreateTopic:
		if r.Code, b, err = getBytes16(b); err != nil {
			return nil, err
		}
		if r.Args, b, err = getBytes16(b); err != nil {
			return nil, err
		}
	case MutationDestroyTopic:
	case MutationUpdateConfig:
		cfg, _, err := DecodeClusterConfig(b)
		if err != nil {
			return nil, err
		}
		r.Config = cfg
	default:
		return nil, ErrUnknownKind
	}
	return r, nil
}

// HandshakeFrame opens a client session.
type HandshakeFrame struct {
	ClientID ClientID
}

func (h *HandshakeFrame) Encode() []byte {
	buf := []byte{byte(CMsgHandshake)}
	return append(buf, h.ClientID[:]...)
}

func DecodeHandshake(b []byte) (*HandshakeFrame, error) {
	if len(b) < 16 {
		return nil, ErrTruncated
	}
	h := &HandshakeFrame{}
	copy(h.ClientID[:], b[:16])
	return h, nil
}

// ReconnectFrame resumes a client session per spec §4.6.
type ReconnectFrame struct {
	ClientID             ClientID
	LastKnownCommitOffset uint64
	FirstResentNonce      uint64
}

func (r *ReconnectFrame) Encode() []byte {
	buf := []byte{byte(CMsgReconnect)}
	buf = append(buf, r.ClientID[:]...)
	buf = putUint64(buf, r.LastKnownCommitOffset)
	buf = putUint64(buf, r.FirstResentNonce)
	return buf
}

func DecodeReconnect(b []byte) (*ReconnectFrame, error) {
	if len(b) < 16 {
		return nil, ErrTruncated
	}
	r := &ReconnectFrame{}
	copy(r.ClientID[:], b[:16])
	b = b[16:]
	var err error
	if r.LastKnownCommitOffset, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if r.FirstResentNonce, _, err = getUint64(b); err != nil {
		return nil, err
	}
	return r, nil
}

// WatchFrame subscribes the connection as a listener on a topic.
type WatchFrame struct {
	Topic              string
	LastReceivedLocal  uint64
}

func (w *WatchFrame) Encode() ([]byte, error) {
	if err := validateTopic(w.Topic); err != nil {
		return nil, err
	}
	buf := []byte{byte(CMsgWatch)}
	buf = putTopic(buf, w.Topic)
	buf = putUint64(buf, w.LastReceivedLocal)
	return buf, nil
}

func DecodeWatch(b []byte) (*WatchFrame, error) {
	w := &WatchFrame{}
	var err error
	if w.Topic, b, err = getTopic(b); err != nil {
		return nil, err
	}
	if w.LastReceivedLocal, _, err = getUint64(b); err != nil {
		return nil, err
	}
	return w, nil
}

// ReceivedFrame acknowledges that a mutation entered the in-flight log.
type ReceivedFrame struct {
	Nonce           uint64
	CommittedOffset uint64
}

func (r *ReceivedFrame) Encode() []byte {
	buf := []byte{byte(CMsgReceived)}
	buf = putUint64(buf, r.Nonce)
	buf = putUint64(buf, r.CommittedOffset)
	return buf
}

func DecodeReceived(b []byte) (*ReceivedFrame, error) {
	r := &ReceivedFrame{}
	var err error
	if r.Nonce, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if r.CommittedOffset, _, err = getUint64(b); err != nil {
		return nil, err
	}
	return r, nil
}

// CommittedFrame acknowledges that a mutation has been durably committed.
// ErrorCode is 0 on success; a non-zero code carries a projector-failure
// or similar typed error alongside the (still-committed) nonce.
type CommittedFrame struct {
	Nonce           uint64
	CommittedOffset uint64
	ErrorCode       uint16
	ErrorMessage    string
}

func (c *CommittedFrame) Encode() []byte {
	buf := []byte{byte(CMsgCommitted)}
	buf = putUint64(buf, c.Nonce)
	buf = putUint64(buf, c.CommittedOffset)
	var codeBuf [2]byte
	codeBuf[0] = byte(c.ErrorCode >> 8)
	codeBuf[1] = byte(c.ErrorCode)
	buf = append(buf, codeBuf[:]...)
	buf = putBytes16(buf, []byte(c.ErrorMessage))
	return buf
}

func DecodeCommitted(b []byte) (*CommittedFrame, error) {
	c := &CommittedFrame{}
	var err error
	if c.Nonce, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if c.CommittedOffset, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if len(b) < 2 {
		return nil, ErrTruncated
	}
	c.ErrorCode = uint16(b[0])<<8 | uint16(b[1])
	b = b[2:]
	msg, _, err := getBytes16(b)
	if err != nil {
		return nil, err
	}
	c.ErrorMessage = string(msg)
	return c, nil
}

// RedirectFrame points a client at the current leader.
type RedirectFrame struct {
	LeaderClientAddr Addr
}

func (r *RedirectFrame) Encode() ([]byte, error) {
	buf := []byte{byte(CMsgRedirect)}
	return r.LeaderClientAddr.encode(buf)
}

func DecodeRedirect(b []byte) (*RedirectFrame, error) {
	addr, _, err := decodeAddr(b)
	if err != nil {
		return nil, err
	}
	return &RedirectFrame{LeaderClientAddr: addr}, nil
}

// ClientReadyFrame tells a client which nonce to use next; it is sent
// after a handshake and closes out reconnect replay (spec §4.6).
type ClientReadyFrame struct {
	NextNonce uint64
}

func (c *ClientReadyFrame) Encode() []byte {
	buf := []byte{byte(CMsgClientReady)}
	return putUint64(buf, c.NextNonce)
}

func DecodeClientReady(b []byte) (*ClientReadyFrame, error) {
	n, _, err := getUint64(b)
	if err != nil {
		return nil, err
	}
	return &ClientReadyFrame{NextNonce: n}, nil
}

// ErrorFrame reports a protocol-level error (bad nonce, malformed
// request) that does not change core state.
type ErrorFrame struct {
	Code    uint16
	Message string
}

func (e *ErrorFrame) Encode() []byte {
	buf := []byte{byte(CMsgError)}
	var codeBuf [2]byte
	codeBuf[0] = byte(e.Code >> 8)
	codeBuf[1] = byte(e.Code)
	buf = append(buf, codeBuf[:]...)
	return putBytes16(buf, []byte(e.Message))
}

func DecodeError(b []byte) (*ErrorFrame, error) {
	if len(b) < 2 {
		return nil, ErrTruncated
	}
	e := &ErrorFrame{Code: uint16(b[0])<<8 | uint16(b[1])}
	msg, _, err := getBytes16(b[2:])
	if err != nil {
		return nil, err
	}
	e.Message = string(msg)
	return e, nil
}

// EventFrame delivers one committed event to a listener.
type EventFrame struct {
	Topic string
	Event *Event
}

func (f *EventFrame) Encode() ([]byte, error) {
	body, err := f.Event.Encode(f.Topic)
	if err != nil {
		return nil, err
	}
	buf := []byte{byte(CMsgEvent)}
	buf = putTopic(buf, f.Topic)
	return append(buf, body...), nil
}

func DecodeEventFrame(b []byte) (*EventFrame, error) {
	topic, rest, err := getTopic(b)
	if err != nil {
		return nil, err
	}
	ev, _, err := DecodeEvent(rest)
	if err != nil {
		return nil, err
	}
	return &EventFrame{Topic: topic, Event: ev}, nil
}

// ConfigUpdateFrame broadcasts a newly-committed config to listeners,
// out of band from any particular topic stream (spec §4.8).
type ConfigUpdateFrame struct {
	Term   uint64
	Config *ClusterConfig
}

func (f *ConfigUpdateFrame) Encode() ([]byte, error) {
	buf := []byte{byte(CMsgConfigUpdate)}
	buf = putUint64(buf, f.Term)
	encoded, err := f.Config.Encode()
	if err != nil {
		return nil, err
	}
	return append(buf, encoded...), nil
}

func DecodeConfigUpdate(b []byte) (*ConfigUpdateFrame, error) {
	term, rest, err := getUint64(b)
	if err != nil {
		return nil, err
	}
	cfg, _, err := DecodeClusterConfig(rest)
	if err != nil {
		return nil, err
	}
	return &ConfigUpdateFrame{Term: term, Config: cfg}, nil
}
