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

// EventKind identifies the shape of an Event's payload.
type EventKind byte

const (
	EventInvalid      EventKind = 0
	EventTopicCreate  EventKind = 1
	EventTopicDestroy EventKind = 2
	EventKeyPut       EventKind = 3
	EventKeyDelete    EventKind = 4
	EventConfigChange EventKind = 5
)

func (k EventKind) String() string {
	switch k {
	case EventTopicCreate:
		return "TOPIC_CREATE"
	case EventTopicDestroy:
		return "TOPIC_DESTROY"
	case EventKeyPut:
		return "KEY_PUT"
	case EventKeyDelete:
		return "KEY_DELETE"
	case EventConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "INVALID"
	}
}

// ConfigChangeSentinel is the offset value CONFIG_CHANGE pseudo-events
// carry in place of a real global/local offset (encoded as all-ones,
// i.e. -1 reinterpreted as uint64, per spec §6).
const ConfigChangeSentinel uint64 = ^uint64(0)

// Event is a single, committed, per-topic projection of a Mutation.
// Multiple events may share a GlobalOffset (a single mutation against a
// programmable topic may emit a batch); such a batch always commits
// atomically.
type Event struct {
	Kind         EventKind
	Term         uint64
	GlobalOffset uint64
	LocalOffset  uint64
	ClientID     ClientID
	Nonce        uint64

	Code, Args  []byte // TOPIC_CREATE
	Key, Value  []byte // KEY_PUT/KEY_DELETE
	Config      *ClusterConfig
}

// Encode serializes the event per spec §6 (mirrors Mutation, with an
// extra local-offset field after the global offset).
func (e *Event) Encode(topic string) ([]byte, error) {
	if e.Kind != EventConfigChange {
		if err := validateTopic(topic); err != nil {
			return nil, err
		}
	} else {
		topic = ""
	}

	buf := make([]byte, 0, 72+len(e.Key)+len(e.Value)+len(e.Code)+len(e.Args))
	buf = append(buf, byte(e.Kind))
	buf = putUint64(buf, e.Term)
	buf = putUint64(buf, e.GlobalOffset)
	buf = putUint64(buf, e.LocalOffset)
	buf = putTopic(buf, topic)
	buf = append(buf, e.ClientID[:]...)
	buf = putUint64(buf, e.Nonce)

	switch e.Kind {
	case EventKeyPut:
		buf = putBytes16(buf, e.Key)
		buf = putBytes16(buf, e.Value)
	case EventKeyDelete:
		buf = putBytes16(buf, e.Key)
	case EventTopicCreate:
		buf = putBytes16(buf, e.Code)
		buf = putBytes16(buf, e.Args)
	case EventTopicDestroy:
		// no additional payload
	case EventConfigChange:
		cfg := e.Config
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

// DecodeEvent parses the bytes produced by Event.Encode, returning the
// event and the topic name it carried (empty for CONFIG_CHANGE).
func DecodeEvent(b []byte) (*Event, string, error) {
	if len(b) < 1 {
		return nil, "", ErrTruncated
	}
	kind := EventKind(b[0])
	b = b[1:]

	e := &Event{Kind: kind}
	var err error
	var topic string
	if e.Term, b, err = getUint64(b); err != nil {
		return nil, "", err
	}
	if e.GlobalOffset, b, err = getUint64(b); err != nil {
		return nil, "", err
	}
	if e.LocalOffset, b, err = getUint64(b); err != nil {
		return nil, "", err
	}
	if topic, b, err = getTopic(b); err != nil {
		return nil, "", err
	}
	if len(b) < 16 {
		return nil, "", ErrTruncated
	}
	copy(e.ClientID[:], b[:16])
	b = b[16:]
	if e.Nonce, b, err = getUint64(b); err != nil {
		return nil, "", err
	}

	switch kind {
	case EventKeyPut:
		if e.Key, b, err = getBytes16(b); err != nil {
			return nil, "", err
		}
		if e.Value, b, err = getBytes16(b); err != nil {
			return nil, "", err
		}
	case EventKeyDelete:
		if e.Key, b, err = getBytes16(b); err != nil {
			return nil, "", err
		}
	case EventTopicCreate:
		if e.Code, b, err = getBytes16(b); err != nil {
			return nil, "", err
		}
		if e.Args, b, err = getBytes16(b); err != nil {
			return nil, "", err
		}
	case EventTopicDestroy:
		// no additional payload
	case EventConfigChange:
		cfg, _, err := DecodeClusterConfig(b)
		if err != nil {
			return nil, "", err
		}
		e.Config = cfg
	default:
		return nil, "", ErrUnknownKind
	}

	return e, topic, nil
}

// NewConfigChangeEvent builds the synthesized, non-persisted pseudo-event
// broadcast to listeners on an UPDATE_CONFIG commit (spec §4.7).
func NewConfigChangeEvent(term uint64, cfg *ClusterConfig) *Event {
	return &Event{
		Kind:         EventConfigChange,
		Term:         term,
		GlobalOffset: ConfigChangeSentinel,
		LocalOffset:  ConfigChangeSentinel,
		Config:       cfg,
	}
}
