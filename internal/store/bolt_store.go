package store

import (
	"context"
	"encoding/binary"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// A single bucket holds all documents:
//   - docsBkt: key is the big-endian bucket sequence number assigned on
//     append, so cursor order is insertion order. Value is the JSON encoded
//     Document.
var docsBkt = []byte("docs")

// BoltStore is a Store backed by a bbolt database file
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens (creating if needed) the database at path
func NewBoltStore(path string) (*BoltStore, error) {
	logrus.Debugf("Initializing boltdb store at %s", path)

	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening database %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(docsBkt); err != nil {
			return errors.Wrapf(err, "error creating docs bucket")
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrapf(err, "error creating initial database layout")
	}

	return &BoltStore{db: db}, nil
}

// List implements Store
func (s *BoltStore) List(_ context.Context, f Filter) ([]Document, error) {
	out := make([]Document, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(docsBkt).ForEach(func(_, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return errors.Wrapf(err, "error decoding document")
			}
			if f.Match(&doc) {
				out = append(out, doc)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Append implements Store
func (s *BoltStore) Append(_ context.Context, doc Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return errors.Wrapf(err, "error encoding document")
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(docsBkt)
		seq, err := bkt.NextSequence()
		if err != nil {
			return errors.Wrapf(err, "error allocating document id")
		}
		return errors.Wrapf(bkt.Put(seqKey(seq), data), "error storing document")
	})
}

// Delete implements Store
func (s *BoltStore) Delete(_ context.Context, f Filter) (int, error) {
	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(docsBkt)
		var keys [][]byte
		err := bkt.ForEach(func(k, v []byte) error {
			var doc Document
			if err := json.Unmarshal(v, &doc); err != nil {
				return errors.Wrapf(err, "error decoding document")
			}
			if f.Match(&doc) {
				keys = append(keys, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := bkt.Delete(k); err != nil {
				return errors.Wrapf(err, "error removing document")
			}
		}
		removed = len(keys)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// Clear implements Store. The sequence keeps counting so keys are never
// reused.
func (s *BoltStore) Clear(ctx context.Context) error {
	_, err := s.Delete(ctx, Filter{})
	return err
}

// Close implements Store
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}
