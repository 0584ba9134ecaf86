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

// Package topic implements event projection (spec §4.7): the pure,
// deterministic function that turns a committed Mutation into the
// batch of per-topic Events every replica must derive identically.
//
// Raw topics project mechanically (one event per mutation kind).
// Programmable topics delegate to an external Projector the core
// treats as an opaque, possibly-failing pure function; a failing or
// panicking projector call degrades to a zero-event commit carrying
// an error effect rather than taking down the node (spec §4.7, §4.9).
package topic

import (
	"fmt"

	"laminar/internal/errs"
	"laminar/internal/wire"
)

// State is one topic's mutable projection state: its kind, its
// per-topic local offset counter, and (for programmable topics) the
// opaque state threaded through successive Projector calls.
type State struct {
	Topic       string
	Programmable bool
	Code        []byte // the programmable topic's installed code, empty for raw topics
	LocalOffset uint64 // next local offset to assign
	Destroyed   bool

	ProgState any // opaque state passed by reference to Projector.Project
}

// Projector is the external, deterministic projection function for
// programmable topics. Implementations must be pure: identical
// (mutation, state) must yield identical (events, newState) on every
// replica. The core never inspects ProgState; it only threads it
// through.
type Projector interface {
	Project(mutation *wire.Mutation, progState any) (events []*wire.Event, newState any, err error)
}

// Table owns every topic's State, keyed by topic name, plus the
// registry of programmable-topic runtimes keyed by the runtime
// identifier they were registered under. It is owned exclusively by
// the node's single command-processing goroutine.
type Table struct {
	topics     map[string]*State
	projectors map[string]Projector // keyed by runtime identifier passed to RegisterProjector
}

// NewTable creates an empty topic table.
func NewTable() *Table {
	return &Table{topics: make(map[string]*State)}
}

// RegisterProjector installs a Projector implementation under a
// runtime identifier. Apply picks the Projector by the runtime argument
// its caller passes; a topic's Code blob is not consulted for this.
// This lets the node host more than one programmable-topic runtime
// (e.g. a Lua sandbox and a WASM sandbox) side by side.
func (t *Table) RegisterProjector(runtime string, p Projector) {
	if t.projectors == nil {
		t.projectors = make(map[string]Projector)
	}
	t.projectors[runtime] = p
}

// Get returns a topic's state, or nil if it does not exist.
func (t *Table) Get(name string) *State { return t.topics[name] }

// Apply projects a single committed mutation against the topic table,
// returning the event batch to persist and broadcast. It is the single
// entry point the commit engine (package node) calls per spec §4.3
// step 4 and §4.7.
func (t *Table) Apply(m *wire.Mutation, runtime string) ([]*wire.Event, error) {
	switch m.Kind {
	case wire.MutationCreateTopic:
		return t.applyCreateTopic(m, runtime)
	case wire.MutationDestroyTopic:
		return t.applyDestroyTopic(m)
	case wire.MutationPut:
		return t.applyRawOrProgrammable(m, runtime)
	case wire.MutationDelete:
		return t.applyRawOrProgrammable(m, runtime)
	default:
		return nil, errs.ProjectorErr(fmt.Sprintf("topic table cannot project mutation kind %v", m.Kind))
	}
}

func (t *Table) applyCreateTopic(m *wire.Mutation, runtime string) ([]*wire.Event, error) {
	if _, exists := t.topics[m.Topic]; exists {
		return nil, errs.TopicExists(m.Topic)
	}
	st := &State{Topic: m.Topic, Code: m.Code}
	if len(m.Code) > 0 {
		st.Programmable = true
	}
	t.topics[m.Topic] = st

	ev := &wire.Event{
		Kind: wire.EventTopicCreate, Term: m.Term, GlobalOffset: m.GlobalOffset,
		LocalOffset: st.LocalOffset, ClientID: m.ClientID, Nonce: m.Nonce,
		Code: m.Code, Args: m.Args,
	}
	st.LocalOffset++
	return []*wire.Event{ev}, nil
}

func (t *Table) applyDestroyTopic(m *wire.Mutation) ([]*wire.Event, error) {
	st, exists := t.topics[m.Topic]
	if !exists || st.Destroyed {
		return nil, errs.UnknownTopic(m.Topic)
	}
	ev := &wire.Event{
		Kind: wire.EventTopicDestroy, Term: m.Term, GlobalOffset: m.GlobalOffset,
		LocalOffset: st.LocalOffset, ClientID: m.ClientID, Nonce: m.Nonce,
	}
	st.LocalOffset++
	st.Destroyed = true
	return []*wire.Event{ev}, nil
}

func (t *Table) applyRawOrProgrammable(m *wire.Mutation, runtime string) ([]*wire.Event, error) {
	st, exists := t.topics[m.Topic]
	if !exists || st.Destroyed {
		return nil, errs.UnknownTopic(m.Topic)
	}
	if st.Programmable {
		return t.applyProgrammable(m, st, runtime)
	}
	return t.applyRaw(m, st)
}

func (t *Table) applyRaw(m *wire.Mutation, st *State) ([]*wire.Event, error) {
	var ev *wire.Event
	switch m.Kind {
	case wire.MutationPut:
		ev = &wire.Event{Kind: wire.EventKeyPut, Key: m.Key, Value: m.Value}
	case wire.MutationDelete:
		ev = &wire.Event{Kind: wire.EventKeyDelete, Key: m.Key}
	default:
		return nil, errs.ProjectorErr(fmt.Sprintf("raw topic projector cannot handle kind %v", m.Kind))
	}
	ev.Term = m.Term
	ev.GlobalOffset = m.GlobalOffset
	ev.LocalOffset = st.LocalOffset
	ev.ClientID = m.ClientID
	ev.Nonce = m.Nonce
	st.LocalOffset++
	return []*wire.Event{ev}, nil
}

// applyProgrammable delegates to the registered Projector. A panicking
// or erroring projector call degrades to a zero-event commit carrying
// a ProjectorPanic/ProjectorErr effect, per spec §4.7 and §4.9; it
// never crashes the node and never advances LocalOffset.
func (t *Table) applyProgrammable(m *wire.Mutation, st *State, runtime string) (events []*wire.Event, err error) {
	p, ok := t.projectors[runtime]
	if !ok {
		return nil, errs.ProjectorErr(fmt.Sprintf("no projector registered for runtime %q", runtime))
	}

	defer func() {
		if r := recover(); r != nil {
			events = nil
			err = errs.ProjectorPanic(m.Topic, r)
		}
	}()

	batch, newState, perr := p.Project(m, st.ProgState)
	if perr != nil {
		return nil, errs.ProjectorErr(perr.Error())
	}
	st.ProgState = newState
	for _, ev := range batch {
		ev.Term = m.Term
		ev.GlobalOffset = m.GlobalOffset
		ev.LocalOffset = st.LocalOffset
		ev.ClientID = m.ClientID
		ev.Nonce = m.Nonce
		st.LocalOffset++
	}
	return batch, nil
}
