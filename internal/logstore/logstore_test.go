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

package logstore

import (
	"sync"
	"testing"
	"time"

	"laminar/internal/wire"
)

func mustOpen(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func awaitAppend(t *testing.T, s *Store, m *wire.Mutation, events map[string][]*wire.Event) {
	t.Helper()
	var wg sync.WaitGroup
	wg.Add(1)
	var appendErr error
	s.AppendAsync(m, events, func(_ *wire.Mutation, err error) {
		appendErr = err
		wg.Done()
	})
	if waitTimeout(&wg, 2*time.Second) {
		t.Fatalf("append callback never fired")
	}
	if appendErr != nil {
		t.Fatalf("append: %v", appendErr)
	}
}

func waitTimeout(wg *sync.WaitGroup, d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return false
	case <-time.After(d):
		return true
	}
}

func TestAppendAndFetchRoundTrip(t *testing.T) {
	s := mustOpen(t)

	m := &wire.Mutation{Kind: wire.MutationPut, Term: 1, GlobalOffset: 0, Topic: "orders", Key: []byte("k"), Value: []byte("v")}
	events := map[string][]*wire.Event{
		"orders": {{Kind: wire.EventKeyPut, Term: 1, GlobalOffset: 0, LocalOffset: 0, Key: []byte("k"), Value: []byte("v")}},
	}
	awaitAppend(t, s, m, events)

	if s.NextOffset() != 1 {
		t.Fatalf("NextOffset() = %d, want 1", s.NextOffset())
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var fetched *wire.Mutation
	var fetchErr error
	s.FetchAsync(0, func(m *wire.Mutation, err error) {
		fetched, fetchErr = m, err
		wg.Done()
	})
	if waitTimeout(&wg, 2*time.Second) {
		t.Fatalf("fetch callback never fired")
	}
	if fetchErr != nil {
		t.Fatalf("fetch: %v", fetchErr)
	}
	if fetched.GlobalOffset != 0 || fetched.Topic != "orders" {
		t.Fatalf("fetched mutation mismatch: %+v", fetched)
	}
}

func TestFetchMissingOffsetReturnsError(t *testing.T) {
	s := mustOpen(t)
	var wg sync.WaitGroup
	wg.Add(1)
	var fetchErr error
	s.FetchAsync(99, func(_ *wire.Mutation, err error) {
		fetchErr = err
		wg.Done()
	})
	if waitTimeout(&wg, 2*time.Second) {
		t.Fatalf("fetch callback never fired")
	}
	if fetchErr == nil {
		t.Fatalf("expected an error fetching a missing offset")
	}
}

func TestRebuildIndexOnReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m := &wire.Mutation{Kind: wire.MutationPut, Term: 1, GlobalOffset: 0, Topic: "orders", Key: []byte("k"), Value: []byte("v")}
	awaitAppend(t, s, m, map[string][]*wire.Event{"orders": {{Kind: wire.EventKeyPut, Key: []byte("k"), Value: []byte("v")}}})
	s.Close()

	reopened, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if reopened.NextOffset() != 1 {
		t.Fatalf("NextOffset() after reopen = %d, want 1", reopened.NextOffset())
	}
}
