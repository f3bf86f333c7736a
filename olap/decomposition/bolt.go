package decomposition

import (
	"bytes"
	"encoding/gob"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"gopkg.in/src-d/go-pivot.v0/olap"
)

const boltBucket = "many-to-many"

func init() {
	gob.Register(time.Time{})
}

type boltEntry struct {
	Element interface{}
	Groups  []interface{}
}

// BoltDefinition is a Definition stored in a bolt file, in the
// many-to-many bucket. Each element is a gob encoded entry keyed by the
// element.
type BoltDefinition struct {
	path string

	mut sync.RWMutex
	db  *bolt.DB
}

var _ Definition = (*BoltDefinition)(nil)

// NewBoltDefinition creates a definition stored in the bolt file at the
// given path. The file is created on first use if missing.
func NewBoltDefinition(path string) *BoltDefinition {
	return &BoltDefinition{path: path}
}

func (d *BoltDefinition) query(fn func(db *bolt.DB) error) error {
	d.mut.Lock()
	if d.db == nil {
		var err error
		d.db, err = bolt.Open(d.path, 0640, &bolt.Options{Timeout: time.Second})
		if err != nil {
			d.mut.Unlock()
			return err
		}
	}
	d.mut.Unlock()

	d.mut.RLock()
	defer d.mut.RUnlock()
	return fn(d.db)
}

// Close closes the bolt file, if open.
func (d *BoltDefinition) Close() error {
	d.mut.Lock()
	defer d.mut.Unlock()

	if d.db != nil {
		if err := d.db.Close(); err != nil {
			return err
		}
		d.db = nil
	}
	return nil
}

// Put adds the element to the given groups.
func (d *BoltDefinition) Put(element interface{}, groups ...interface{}) error {
	return d.query(func(db *bolt.DB) error {
		return db.Update(func(tx *bolt.Tx) error {
			b, err := tx.CreateBucketIfNotExists([]byte(boltBucket))
			if err != nil {
				return err
			}

			key := []byte(olap.ValueKey(element))
			entry := boltEntry{Element: olap.Normalize(element)}
			if val := b.Get(key); val != nil {
				if entry, err = decodeEntry(val); err != nil {
					return err
				}
			}

			set := olap.NewValueSet(entry.Groups...)
			for _, g := range groups {
				set.Add(g)
			}
			entry.Groups = set.Values()

			var buf bytes.Buffer
			if err := gob.NewEncoder(&buf).Encode(entry); err != nil {
				return err
			}
			return b.Put(key, buf.Bytes())
		})
	})
}

func decodeEntry(val []byte) (boltEntry, error) {
	var entry boltEntry
	err := gob.NewDecoder(bytes.NewReader(val)).Decode(&entry)
	return entry, err
}

func (d *BoltDefinition) forEach(fn func(entry boltEntry) error) error {
	return d.query(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(boltBucket))
			if b == nil {
				return nil
			}

			return b.ForEach(func(_, val []byte) error {
				entry, err := decodeEntry(val)
				if err != nil {
					return err
				}
				return fn(entry)
			})
		})
	})
}

// Groups implements the Definition interface.
func (d *BoltDefinition) Groups(element interface{}) (*olap.ValueSet, error) {
	result := olap.NewValueSet()
	err := d.query(func(db *bolt.DB) error {
		return db.View(func(tx *bolt.Tx) error {
			b := tx.Bucket([]byte(boltBucket))
			if b == nil {
				return nil
			}

			val := b.Get([]byte(olap.ValueKey(element)))
			if val == nil {
				return nil
			}

			entry, err := decodeEntry(val)
			if err != nil {
				return err
			}
			for _, g := range entry.Groups {
				result.Add(g)
			}
			return nil
		})
	})
	return result, err
}

// MatchingGroups implements the Definition interface.
func (d *BoltDefinition) MatchingGroups(pred GroupPredicate) (*olap.ValueSet, error) {
	result := olap.NewValueSet()
	seen := olap.NewValueSet()
	err := d.forEach(func(entry boltEntry) error {
		for _, g := range entry.Groups {
			if !seen.Add(g) {
				continue
			}

			ok, err := pred(g)
			if err != nil {
				return err
			}
			if ok {
				result.Add(g)
			}
		}
		return nil
	})
	return result, err
}

// ElementsMatchingGroups implements the Definition interface.
func (d *BoltDefinition) ElementsMatchingGroups(pred GroupPredicate) (*olap.ValueSet, error) {
	result := olap.NewValueSet()
	err := d.forEach(func(entry boltEntry) error {
		for _, g := range entry.Groups {
			ok, err := pred(g)
			if err != nil {
				return err
			}
			if ok {
				result.Add(entry.Element)
				return nil
			}
		}
		return nil
	})
	return result, err
}
