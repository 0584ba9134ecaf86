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

// Package inflight implements the dense, in-memory FIFO of mutations
// that have entered the global log but have not yet been trimmed
// because every active config's progress has passed them (spec §4.2).
// It is owned exclusively by the node's single command-processing
// goroutine; nothing in this package takes a lock.
package inflight

import (
	"laminar/internal/wire"
)

// Buffer is a dense ring of in-flight mutations addressed by their
// global offset. Entries are appended in strictly increasing offset
// order starting at base+len(entries); entries before base have
// already been popped.
type Buffer struct {
	base    uint64
	entries []*wire.Mutation
}

// New creates an empty buffer whose first append will land at
// baseOffset.
func New(baseOffset uint64) *Buffer {
	return &Buffer{base: baseOffset}
}

// BaseOffset is the global offset of the oldest entry still buffered,
// or the next offset to be appended if the buffer is empty.
func (b *Buffer) BaseOffset() uint64 { return b.base }

// NextOffset is the offset the next Append call must use.
func (b *Buffer) NextOffset() uint64 { return b.base + uint64(len(b.entries)) }

// Len reports how many mutations are currently buffered.
func (b *Buffer) Len() int { return len(b.entries) }

// Append adds a mutation at NextOffset. It panics if m.GlobalOffset
// does not match, since a mismatch indicates a bug in the caller's
// offset bookkeeping rather than a recoverable runtime condition.
func (b *Buffer) Append(m *wire.Mutation) {
	if m.GlobalOffset != b.NextOffset() {
		panic("inflight: append out of order")
	}
	b.entries = append(b.entries, m)
}

// Peek returns the mutation at the given global offset, or nil if it
// is not currently buffered (already popped, or not yet appended).
func (b *Buffer) Peek(offset uint64) *wire.Mutation {
	if offset < b.base || offset >= b.NextOffset() {
		return nil
	}
	return b.entries[offset-b.base]
}

// PeekTerm returns the term of the entry at offset, and whether one
// exists. Used to validate AppendMutations' previous
// offset/term pair (spec §4.5).
func (b *Buffer) PeekTerm(offset uint64) (term uint64, ok bool) {
	m := b.Peek(offset)
	if m == nil {
		return 0, false
	}
	return m.Term, true
}

// DropTailFrom discards every buffered entry at or after offset. Used
// when a follower's log conflicts with a leader's AppendMutations and
// must rewind (spec §4.5, §8 scenario 3).
func (b *Buffer) DropTailFrom(offset uint64) {
	if offset <= b.base {
		b.entries = nil
		return
	}
	if offset >= b.NextOffset() {
		return
	}
	b.entries = b.entries[:offset-b.base]
}

// PopCommitted removes every entry up to and including
// committedOffset, advancing the base. Entries are only safe to pop
// once the consensus offset (the minimum majority-replicated offset
// across every active config, see package syncprogress) has passed
// them; the caller is responsible for enforcing that invariant.
func (b *Buffer) PopCommitted(committedOffset uint64) []*wire.Mutation {
	if committedOffset < b.base {
		return nil
	}
	end := committedOffset - b.base + 1
	if end > uint64(len(b.entries)) {
		end = uint64(len(b.entries))
	}
	popped := b.entries[:end]
	b.entries = b.entries[end:]
	b.base += end
	return popped
}

// All returns every currently buffered entry, oldest first. Callers
// must not mutate the returned slice.
func (b *Buffer) All() []*wire.Mutation { return b.entries }
