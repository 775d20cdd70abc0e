// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package badger provides a BadgerDB-backed archive that survives gate
// restarts. Payloads are optionally zstd-compressed on disk.
package badger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/absmach/fluxgate/archive"
)

const keyPrefix = "drop:"

var _ archive.Archive = (*Archive)(nil)

// Zstd encoder/decoder reused across entries.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.SpeedDefault),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		panic("failed to create zstd encoder: " + err.Error())
	}

	zstdDecoder, err = zstd.NewReader(nil,
		zstd.WithDecoderConcurrency(1),
	)
	if err != nil {
		panic("failed to create zstd decoder: " + err.Error())
	}
}

// Config holds BadgerDB archive configuration.
type Config struct {
	Dir         string // directory for BadgerDB data
	Compression bool   // zstd-compress payloads on disk
}

// Archive is a BadgerDB-backed archive.
//
// Key format: drop:{id}
type Archive struct {
	db       *badger.DB
	compress bool

	gcStopCh chan struct{}
	gcDone   chan struct{}
	closed   bool
	mu       sync.Mutex
}

// record is the on-disk form of an entry. Zstd marks a compressed
// payload so entries written with compression off stay readable after
// it is turned on.
type record struct {
	archive.Entry
	Zstd bool `json:"zstd,omitempty"`
}

// New opens or creates the archive at cfg.Dir.
func New(cfg Config) (*Archive, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = nil
	// Archived entries exist because a message was already lost once;
	// fsync on every write so a crash cannot lose them again. Drop
	// volume is low enough that the cost does not matter.
	opts.SyncWrites = true
	opts.NumVersionsToKeep = 1
	opts.NumCompactors = 2

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	a := &Archive{
		db:       db,
		compress: cfg.Compression,
		gcStopCh: make(chan struct{}),
		gcDone:   make(chan struct{}),
	}

	go a.runGC()

	return a, nil
}

// Record persists the entry.
func (a *Archive) Record(ctx context.Context, entry archive.Entry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.DroppedAt.IsZero() {
		entry.DroppedAt = time.Now().UTC()
	}

	rec := record{Entry: entry}
	if a.compress && len(rec.Payload) > 0 {
		rec.Payload = zstdEncoder.EncodeAll(rec.Payload, nil)
		rec.Zstd = true
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal archive entry: %w", err)
	}

	key := []byte(keyPrefix + entry.ID)
	return a.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// Get returns the entry with the given ID.
func (a *Archive) Get(ctx context.Context, id string) (archive.Entry, error) {
	var rec record

	err := a.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(keyPrefix + id))
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return archive.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return archive.Entry{}, err
	}

	return a.restore(rec)
}

// List returns up to limit entries, newest first.
func (a *Archive) List(ctx context.Context, limit int) ([]archive.Entry, error) {
	var recs []record

	err := a.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return err
			}
			recs = append(recs, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(recs, func(i, j int) bool {
		return recs[i].DroppedAt.After(recs[j].DroppedAt)
	})
	if limit > 0 && limit < len(recs) {
		recs = recs[:limit]
	}

	out := make([]archive.Entry, 0, len(recs))
	for _, rec := range recs {
		entry, err := a.restore(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

// restore undoes on-disk payload compression.
func (a *Archive) restore(rec record) (archive.Entry, error) {
	if !rec.Zstd {
		return rec.Entry, nil
	}

	payload, err := zstdDecoder.DecodeAll(rec.Payload, nil)
	if err != nil {
		return archive.Entry{}, fmt.Errorf("failed to decompress archive payload: %w", err)
	}
	rec.Payload = payload
	return rec.Entry, nil
}

// runGC runs BadgerDB's value log garbage collection periodically.
func (a *Archive) runGC() {
	defer close(a.gcDone)

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_ = a.db.RunValueLogGC(0.5)
		case <-a.gcStopCh:
			return
		}
	}
}

// Close stops the GC loop and closes the database.
func (a *Archive) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.closed {
		return nil
	}
	a.closed = true

	close(a.gcStopCh)
	<-a.gcDone

	return a.db.Close()
}
