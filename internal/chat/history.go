package chat

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bLines = "lines"

	defaultTO = 2 * time.Second
)

// History is a BoltDB-backed append-only chat log. Lines are keyed by a
// monotonically increasing sequence number, so iteration is chronological.
type History struct {
	db *bolt.DB
}

// OpenHistory opens (or creates) a history database at path.
func OpenHistory(path string) (*History, error) {
	if path == "" {
		return nil, errors.New("empty history path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: defaultTO})
	if err != nil {
		return nil, err
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bLines))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &History{db: db}, nil
}

func (h *History) Close() error { return h.db.Close() }

// Append stores l and returns it with its sequence number set.
func (h *History) Append(l Line) (Line, error) {
	err := h.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bLines))

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		l.Seq = seq

		val, err := json.Marshal(l)
		if err != nil {
			return err
		}
		return b.Put(seqKey(seq), val)
	})
	return l, err
}

// Recent returns up to n of the latest lines, oldest first.
func (h *History) Recent(n int) ([]Line, error) {
	if n <= 0 {
		return nil, nil
	}
	out := make([]Line, 0, min(n, 256))

	err := h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bLines)).Cursor()
		for k, v := c.Last(); k != nil && len(out) < n; k, v = c.Prev() {
			var l Line
			if err := json.Unmarshal(v, &l); err != nil {
				// Corruption: skip the entry, keep the rest readable.
				continue
			}
			out = append(out, l)
		}
		return nil
	})

	// Collected newest first.
	slices.Reverse(out)
	return out, err
}

// ForEach calls fn for every stored line in order. An error from fn stops
// the iteration and is returned.
func (h *History) ForEach(fn func(Line) error) error {
	return h.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bLines)).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var l Line
			if err := json.Unmarshal(v, &l); err != nil {
				continue
			}
			if err := fn(l); err != nil {
				return err
			}
		}
		return nil
	})
}

// seqKey is big-endian so byte order matches numeric order.
func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
