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

// MutationKind identifies the shape of a Mutation's payload.
type MutationKind byte

const (
	MutationInvalid      MutationKind = 0
	MutationCreateTopic  MutationKind = 1
	MutationDestroyTopic MutationKind = 2
	MutationPut          MutationKind = 3
	MutationDelete       MutationKind = 4
	MutationUpdateConfig MutationKind = 5
)

func (k MutationKind) String() string {
	switch k {
	case MutationCreateTopic:
		return "CREATE_TOPIC"
	case MutationDestroyTopic:
		return "DESTROY_TOPIC"
	case MutationPut:
		return "PUT"
	case MutationDelete:
		return "DELETE"
	case MutationUpdateConfig:
		return "UPDATE_CONFIG"
	default:
		return "INVALID"
	}
}

// Mutation is a single entry in the global, cluster-wide log.
//
// (GlobalOffset, Term) uniquely identifies a committed entry: two
// entries sharing an offset must share a term and payload once
// committed, and a node never emits two mutations at the same offset
// with different content in the same term.
type Mutation struct {
	Kind         MutationKind
	Term         uint64
	GlobalOffset uint64
	Topic        string
	ClientID     ClientID
	Nonce        uint64

	// CREATE_TOPIC payload.
	Code []byte
	Args []byte

	// PUT/DELETE payload.
	Key   []byte
	Value []byte

	// UPDATE_CONFIG payload.
	Config *ClusterConfig
}

// Encode serializes the mutation per spec §6.
func (m *Mutation) Encode() ([]byte, error) {
	topic := m.Topic
	if m.Kind == MutationUpdateConfig {
		topic = "" // UPDATE_CONFIG carries a zero-length synthetic topic on the wire.
	} else if err := validateTopic(topic); err != nil {
		return nil, err
	}
	if len(topic) > 127 {
		return nil, ErrShortTopic
	}

	buf := make([]byte, 0, 64+len(m.Key)+len(m.Value)+len(m.Code)+len(m.Args))
	buf = append(buf, byte(m.Kind))
	buf = putUint64(buf, m.Term)
	buf = putUint64(buf, m.GlobalOffset)
	buf = putTopic(buf, topic)
	buf = append(buf, m.ClientID[:]...)
	buf = putUint64(buf, m.Nonce)

	switch m.Kind {
	case MutationPut:
		buf = putBytes16(buf, m.Key)
		buf = putBytes16(buf, m.Value)
	case MutationDelete:
		buf = putBytes16(buf, m.Key)
	case MutationCreateTopic:
		buf = putBytes16(buf, m.Code)
		buf = putBytes16(buf, m.Args)
	case MutationDestroyTopic:
		// no additional payload
	case MutationUpdateConfig:
		cfg := m.Config
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

// DecodeMutation parses the bytes produced by Mutation.Encode.
func DecodeMutation(b []byte) (*Mutation, error) {
	if len(b) < 1 {
		return nil, ErrTruncated
	}
	kind := MutationKind(b[0])
	b = b[1:]

	m := &Mutation{Kind: kind}
	var err error
	if m.Term, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if m.GlobalOffset, b, err = getUint64(b); err != nil {
		return nil, err
	}
	if m.Topic, b, err = getTopic(b); err != nil {
		return nil, err
	}
	if len(b) < 16 {
		return nil, ErrTruncated
	}
	copy(m.ClientID[:], b[:16])
	b = b[16:]
	if m.Nonce, b, err = getUint64(b); err != nil {
		return nil, err
	}

	switch kind {
	case MutationPut:
		if m.Key, b, err = getBytes16(b); err != nil {
			return nil, err
		}
		if m.Value, b, err = getBytes16(b); err != nil {
			return nil, err
		}
	case MutationDelete:
		if m.Key, b, err = getBytes16(b); err != nil {
			return nil, err
		}
	case MutationCreateTopic:
		if m.Code, b, err = getBytes16(b); err != nil {
			return nil, err
		}
		if m.Args, b, err = getBytes16(b); err != nil {
			return nil, err
		}
	case MutationDestroyTopic:
		// no additional payload
	case MutationUpdateConfig:
		cfg, _, err := DecodeClusterConfig(b)
		if err != nil {
			return nil, err
		}
		m.Config = cfg
	default:
		return nil, ErrUnknownKind
	}

	return m, nil
}
