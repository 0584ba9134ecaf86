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
Package logstore is the Log Store collaborator: the durable,
append-only global mutation log plus per-topic event logs, fronted by
a worker-pool so the node's single command-processing goroutine never
blocks on disk I/O (spec §2, §4.3, §4.7).

Every request (append, fetch) is submitted to a bounded channel and
completes through a callback invoked on a worker goroutine; submission
order within a single caller is preserved because append requests for
the global log are drained by exactly one worker. Fetches may run on
any worker and complete out of order, which is safe because they are
read-only.
*/
package logstore

import (
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"sync"

	"laminar/internal/errs"
	"laminar/internal/logging"
	"laminar/internal/wire"
)

const (
	globalLogFile = "global.log"
	numFetchWorkers = 4
	requestQueueSize = 1024
)

type opType int

const (
	opAppend opType = iota
	opFetch
)

type request struct {
	op       opType
	mutation *wire.Mutation
	events   map[string][]*wire.Event // topic -> events, committed atomically with the mutation
	offset   uint64
	callback func(*wire.Mutation, error)
	fetchCB  func(*wire.Mutation, error)
}

// Store is the durable log store. One Store instance owns the entire
// node's on-disk state: the global mutation log and one event log per
// topic, plus an in-memory offset index for random fetch.
type Store struct {
	log *logging.Logger

	dataDir string

	mu         sync.Mutex // protects the in-memory index and open file handles
	globalFile *os.File
	index      map[uint64]int64 // global offset -> byte position in globalFile
	nextOffset uint64

	topicFiles map[string]*os.File

	appendCh chan *request
	fetchCh  chan *request
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// Open opens (creating if necessary) the log store rooted at dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errs.IOErr(err)
	}
	f, err := os.OpenFile(filepath.Join(dataDir, globalLogFile), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.IOErr(err)
	}

	s := &Store{
		log:        logging.NewLogger("logstore"),
		dataDir:    dataDir,
		globalFile: f,
		index:      make(map[uint64]int64),
		topicFiles: make(map[string]*os.File),
		appendCh:   make(chan *request, requestQueueSize),
		fetchCh:    make(chan *request, requestQueueSize),
		stopCh:     make(chan struct{}),
	}

	if err := s.rebuildIndex(); err != nil {
		f.Close()
		return nil, err
	}

	s.wg.Add(1)
	go s.appendWorker()
	for i := 0; i < numFetchWorkers; i++ {
		s.wg.Add(1)
		go s.fetchWorker()
	}

	return s, nil
}

// Close stops the worker pool and closes every open file handle.
func (s *Store) Close() error {
	close(s.stopCh)
	s.wg.Wait()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalFile.Close()
	for _, f := range s.topicFiles {
		f.Close()
	}
	return nil
}

// NextOffset is the global offset the next AppendAsync call should
// use; it reflects every append already durably written.
func (s *Store) NextOffset() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextOffset
}

// AppendAsync durably appends a committed mutation and its projected
// event batch (keyed by topic; CONFIG_CHANGE pseudo-events are never
// passed here since they are not persisted). callback runs on a
// worker goroutine once the append lands on disk, or with an error.
func (s *Store) AppendAsync(m *wire.Mutation, events map[string][]*wire.Event, callback func(*wire.Mutation, error)) {
	s.appendCh <- &request{op: opAppend, mutation: m, events: events, callback: callback}
}

// FetchAsync retrieves the mutation at offset, calling back with the
// result on a worker goroutine.
func (s *Store) FetchAsync(offset uint64, callback func(*wire.Mutation, error)) {
	s.fetchCh <- &request{op: opFetch, offset: offset, fetchCB: callback}
}

func (s *Store) appendWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case req := <-s.appendCh:
			err := s.doAppend(req.mutation, req.events)
			req.callback(req.mutation, err)
		}
	}
}

func (s *Store) fetchWorker() {
	defer s.wg.Done()
	for {
		select {
		case <-s.stopCh:
			return
		case req := <-s.fetchCh:
			m, err := s.doFetch(req.offset)
			req.fetchCB(m, err)
		}
	}
}

func (s *Store) doAppend(m *wire.Mutation, events map[string][]*wire.Event) error {
	encoded, err := m.Encode()
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if m.GlobalOffset != s.nextOffset {
		return errs.StorageErr("append out of sequence").WithDetail(
			"expected offset does not match append target")
	}

	pos, err := s.globalFile.Seek(0, os.SEEK_END)
	if err != nil {
		return errs.IOErr(err)
	}
	if err := writeLengthPrefixed(s.globalFile, encoded); err != nil {
		return errs.IOErr(err)
	}

	for topicName, batch := range events {
		if err := s.appendTopicEvents(topicName, batch); err != nil {
			return err
		}
	}

	if err := s.globalFile.Sync(); err != nil {
		return errs.IOErr(err)
	}

	s.index[m.GlobalOffset] = pos
	s.nextOffset = m.GlobalOffset + 1
	return nil
}

func (s *Store) appendTopicEvents(topicName string, batch []*wire.Event) error {
	f, err := s.topicFile(topicName)
	if err != nil {
		return err
	}
	for _, ev := range batch {
		encoded, err := ev.Encode(topicName)
		if err != nil {
			return err
		}
		if err := writeLengthPrefixed(f, encoded); err != nil {
			return errs.IOErr(err)
		}
	}
	return f.Sync()
}

func (s *Store) topicFile(topicName string) (*os.File, error) {
	if f, ok := s.topicFiles[topicName]; ok {
		return f, nil
	}
	f, err := os.OpenFile(filepath.Join(s.dataDir, "topic-"+topicName+".log"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, errs.IOErr(err)
	}
	s.topicFiles[topicName] = f
	return f, nil
}

func (s *Store) doFetch(offset uint64) (*wire.Mutation, error) {
	s.mu.Lock()
	pos, ok := s.index[offset]
	s.mu.Unlock()
	if !ok {
		return nil, errs.OffsetNotFound(offset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.globalFile.Seek(pos, os.SEEK_SET); err != nil {
		return nil, errs.IOErr(err)
	}
	raw, err := readLengthPrefixed(s.globalFile)
	if err != nil {
		return nil, errs.IOErr(err)
	}
	return wire.DecodeMutation(raw)
}

// rebuildIndex scans the global log on startup, populating the
// offset->position index and the next-offset counter.
func (s *Store) rebuildIndex() error {
	if _, err := s.globalFile.Seek(0, os.SEEK_SET); err != nil {
		return errs.IOErr(err)
	}
	var pos int64
	for {
		start := pos
		raw, err := readLengthPrefixed(s.globalFile)
		if err != nil {
			break
		}
		pos += 4 + int64(len(raw))
		m, derr := wire.DecodeMutation(raw)
		if derr != nil {
			return errs.LogCorrupted(derr.Error())
		}
		s.index[m.GlobalOffset] = start
		s.nextOffset = m.GlobalOffset + 1
	}
	return nil
}

func writeLengthPrefixed(f *os.File, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := f.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := f.Write(payload)
	return err
}

func readLengthPrefixed(f *os.File) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(f, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
