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

package topic

import (
	"errors"
	"testing"

	"laminar/internal/errs"
	"laminar/internal/wire"
)

func TestRawTopicLifecycle(t *testing.T) {
	tbl := NewTable()

	create := &wire.Mutation{Kind: wire.MutationCreateTopic, Term: 1, GlobalOffset: 0, Topic: "orders"}
	events, err := tbl.Apply(create, "")
	if err != nil {
		t.Fatalf("CREATE_TOPIC: %v", err)
	}
	if len(events) != 1 || events[0].Kind != wire.EventTopicCreate {
		t.Fatalf("CREATE_TOPIC events = %+v", events)
	}

	put := &wire.Mutation{Kind: wire.MutationPut, Term: 1, GlobalOffset: 1, Topic: "orders", Key: []byte("k"), Value: []byte("v")}
	events, err = tbl.Apply(put, "")
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	if len(events) != 1 || events[0].Kind != wire.EventKeyPut || events[0].LocalOffset != 1 {
		t.Fatalf("PUT events = %+v", events)
	}

	del := &wire.Mutation{Kind: wire.MutationDelete, Term: 1, GlobalOffset: 2, Topic: "orders", Key: []byte("k")}
	events, err = tbl.Apply(del, "")
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	if len(events) != 1 || events[0].Kind != wire.EventKeyDelete || events[0].LocalOffset != 2 {
		t.Fatalf("DELETE events = %+v", events)
	}

	destroy := &wire.Mutation{Kind: wire.MutationDestroyTopic, Term: 1, GlobalOffset: 3, Topic: "orders"}
	events, err = tbl.Apply(destroy, "")
	if err != nil {
		t.Fatalf("DESTROY_TOPIC: %v", err)
	}
	if len(events) != 1 || events[0].Kind != wire.EventTopicDestroy {
		t.Fatalf("DESTROY_TOPIC events = %+v", events)
	}

	// A mutation against a destroyed topic is an unknown-topic error.
	if _, err := tbl.Apply(put, ""); errs.GetCode(err) != errs.CodeUnknownTopic {
		t.Fatalf("expected unknown topic error against destroyed topic, got %v", err)
	}
}

func TestCreateTopicTwiceFails(t *testing.T) {
	tbl := NewTable()
	create := &wire.Mutation{Kind: wire.MutationCreateTopic, Topic: "orders"}
	if _, err := tbl.Apply(create, ""); err != nil {
		t.Fatalf("first CREATE_TOPIC: %v", err)
	}
	if _, err := tbl.Apply(create, ""); errs.GetCode(err) != errs.CodeTopicExists {
		t.Fatalf("expected topic-exists error, got %v", err)
	}
}

type doublingProjector struct{}

func (doublingProjector) Project(m *wire.Mutation, progState any) ([]*wire.Event, any, error) {
	count, _ := progState.(int)
	count++
	return []*wire.Event{{Kind: wire.EventKeyPut, Key: m.Key, Value: m.Value}, {Kind: wire.EventKeyPut, Key: m.Key, Value: m.Value}}, count, nil
}

func TestProgrammableTopicDelegatesToProjector(t *testing.T) {
	tbl := NewTable()
	tbl.RegisterProjector("double", doublingProjector{})

	create := &wire.Mutation{Kind: wire.MutationCreateTopic, Topic: "doubler", Code: []byte("double")}
	if _, err := tbl.Apply(create, "double"); err != nil {
		t.Fatalf("CREATE_TOPIC: %v", err)
	}

	put := &wire.Mutation{Kind: wire.MutationPut, Topic: "doubler", Key: []byte("k"), Value: []byte("v")}
	events, err := tbl.Apply(put, "double")
	if err != nil {
		t.Fatalf("PUT: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected doubling projector to emit 2 events, got %d", len(events))
	}
	if events[0].LocalOffset != 1 || events[1].LocalOffset != 2 {
		t.Fatalf("expected sequential local offsets, got %d and %d", events[0].LocalOffset, events[1].LocalOffset)
	}
}

type panickingProjector struct{}

func (panickingProjector) Project(m *wire.Mutation, progState any) ([]*wire.Event, any, error) {
	panic("boom")
}

func TestProgrammableTopicPanicDegradesToZeroEventError(t *testing.T) {
	tbl := NewTable()
	tbl.RegisterProjector("boom", panickingProjector{})

	create := &wire.Mutation{Kind: wire.MutationCreateTopic, Topic: "boomer", Code: []byte("boom")}
	if _, err := tbl.Apply(create, "boom"); err != nil {
		t.Fatalf("CREATE_TOPIC: %v", err)
	}

	put := &wire.Mutation{Kind: wire.MutationPut, Topic: "boomer", Key: []byte("k"), Value: []byte("v")}
	events, err := tbl.Apply(put, "boom")
	if events != nil {
		t.Fatalf("expected zero events on projector panic, got %v", events)
	}
	if errs.GetCode(err) != errs.CodeProjectorPanic {
		t.Fatalf("expected ProjectorPanic error, got %v", err)
	}
}

type erroringProjector struct{}

func (erroringProjector) Project(m *wire.Mutation, progState any) ([]*wire.Event, any, error) {
	return nil, progState, errors.New("rejected by business logic")
}

func TestProgrammableTopicErrorDegradesToZeroEventCommit(t *testing.T) {
	tbl := NewTable()
	tbl.RegisterProjector("reject", erroringProjector{})
	create := &wire.Mutation{Kind: wire.MutationCreateTopic, Topic: "rejector", Code: []byte("reject")}
	if _, err := tbl.Apply(create, "reject"); err != nil {
		t.Fatalf("CREATE_TOPIC: %v", err)
	}
	put := &wire.Mutation{Kind: wire.MutationPut, Topic: "rejector", Key: []byte("k"), Value: []byte("v")}
	events, err := tbl.Apply(put, "reject")
	if events != nil {
		t.Fatalf("expected zero events, got %v", events)
	}
	if err == nil {
		t.Fatalf("expected a projector error")
	}
}
