// Package checkpoint saves and restores mixture estimation state in a
// bolt database, so long runs can report their last known proportions
// after an interruption.
package checkpoint

import (
	"encoding/json"
	"time"

	"github.com/op/go-logging"

	bolt "go.etcd.io/bbolt"
)

// log is the global logging variable.
var log = logging.MustGetLogger("checkpoint")

// MAIN is the key name for all checkpoint records.
var MAIN = []byte("main")

// CheckpointData stores the state of one EM run.
type CheckpointData struct {
	// Proportions are the natural-space mixture proportions per
	// haplogroup at the time of the save.
	Proportions map[string]float64
	// Restart is the zero-based restart index.
	Restart int
	// Iter is the iteration within the restart.
	Iter int
	// Final marks the state saved after the last restart finished.
	Final bool
}

// CheckpointIO provides the operations on checkpoints.
type CheckpointIO struct {
	db      *bolt.DB
	key     []byte
	last    time.Time
	seconds float64
}

// NewCheckpointIO creates a new CheckpointIO saving under the given
// key at most once every seconds.
func NewCheckpointIO(db *bolt.DB, key []byte, seconds float64) (s *CheckpointIO) {
	s = &CheckpointIO{
		db:      db,
		key:     key,
		seconds: seconds,
	}
	return
}

// Save saves an EM state checkpoint to the database.
func (s *CheckpointIO) Save(data *CheckpointData) error {
	// Even if saving fails, we do not want to run this code too often.
	s.SetNow()
	dataB, err := json.Marshal(data)
	if err != nil {
		log.Error("Error serializing checkpoint", err)
		return err
	}
	err = SaveData(s.db, s.key, dataB)
	if err != nil {
		log.Error("Error saving checkpoint", err)
	}
	return err
}

// Load returns the stored EM state, nil if there is none.
func (s *CheckpointIO) Load() (*CheckpointData, error) {
	var data *CheckpointData

	b, err := LoadData(s.db, s.key)

	if err != nil || b == nil {
		return nil, err
	}

	err = json.Unmarshal(b, &data)

	if err != nil {
		return nil, err
	}

	if data == nil || len(data.Proportions) == 0 {
		return nil, nil
	}

	if data.Final {
		log.Noticef("Found finished estimation checkpoint (restart=%v, iter=%v)", data.Restart, data.Iter)
	} else {
		log.Noticef("Found unfinished estimation checkpoint (restart=%v, iter=%v)", data.Restart, data.Iter)
	}

	return data, nil
}

// Old returns true if the last checkpoint save was too long ago.
func (s *CheckpointIO) Old() bool {
	if time.Since(s.last).Seconds() > s.seconds {
		return true
	}
	return false
}

// SetNow sets the last checkpoint time to now.
func (s *CheckpointIO) SetNow() {
	s.last = time.Now()
}

// SaveData saves values in the bolt database.
func SaveData(db *bolt.DB, key []byte, data []byte) error {
	if db == nil {
		return nil
	}
	err := db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(MAIN)
		if err != nil {
			return err
		}

		err = b.Put(key, data)
		return err
	})
	return err
}

// LoadData loads data from the bolt database.
func LoadData(db *bolt.DB, key []byte) ([]byte, error) {
	var data []byte
	if db == nil {
		return nil, nil
	}
	err := db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(MAIN)
		if b == nil {
			return nil
		}

		v := b.Get(key)
		if v != nil {
			data = make([]byte, len(v))
			copy(data, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}
