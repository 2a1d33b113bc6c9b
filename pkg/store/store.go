// Package store persists driver configuration in a bbolt database: the
// saved property values and the unique ID of every device.
package store

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/yaml.v3"

	"driverkit/pkg/property"
)

const (
	bucket      = "devices"
	settingsKey = "settings"
	uniqueIDKey = "unique_id"
)

type Store struct {
	db     *bolt.DB
	logger log.FieldLogger
}

// Open opens or creates the database at path.
func Open(path string, logger log.FieldLogger) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	st, err := New(db, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return st, nil
}

// New wraps an open database and creates the top level bucket.
func New(db *bolt.DB, logger log.FieldLogger) (*Store, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create bucket %s: %v", bucket, err)
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveProperties replaces the saved settings of device.
func (s *Store) SaveProperties(device string, settings []property.Setting) error {
	if device == "" {
		return fmt.Errorf("device name cannot be empty")
	}
	value, err := json.Marshal(settings)
	if err != nil {
		return err
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(bucket)).CreateBucketIfNotExists([]byte(device))
		if err != nil {
			return err
		}
		s.logger.Debugf("Saving %d settings for %s", len(settings), device)
		return b.Put([]byte(settingsKey), value)
	})
}

// LoadProperties returns the saved settings of device. A device that never
// saved anything has no settings and no error.
func (s *Store) LoadProperties(device string) ([]property.Setting, error) {
	var settings []property.Setting

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucket)).Bucket([]byte(device))
		if b == nil {
			return nil
		}
		value := b.Get([]byte(settingsKey))
		if value == nil {
			return nil
		}
		return json.Unmarshal(value, &settings)
	})

	return settings, err
}

// UniqueID returns the unique ID of device, creating one the first time.
func (s *Store) UniqueID(device string) (string, error) {
	var id string

	err := s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.Bucket([]byte(bucket)).CreateBucketIfNotExists([]byte(device))
		if err != nil {
			return err
		}
		if value := b.Get([]byte(uniqueIDKey)); value != nil {
			id = string(value)
			return nil
		}
		id = uuid.NewString()
		s.logger.Infof("Assigned unique ID %s to %s", id, device)
		return b.Put([]byte(uniqueIDKey), []byte(id))
	})

	return id, err
}

// Devices returns the names of every device with saved data, sorted.
func (s *Store) Devices() ([]string, error) {
	var names []string

	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEachBucket(func(k []byte) error {
			names = append(names, string(k))
			return nil
		})
	})

	return names, err
}

// DeviceConfig is the exported form of everything saved for a device.
type DeviceConfig struct {
	UniqueID string             `json:"unique_id" yaml:"unique_id"`
	Settings []property.Setting `json:"settings" yaml:"settings"`
}

// Export returns the saved configuration of every device.
func (s *Store) Export() (map[string]DeviceConfig, error) {
	out := make(map[string]DeviceConfig)

	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(bucket))
		return root.ForEachBucket(func(k []byte) error {
			b := root.Bucket(k)
			cfg := DeviceConfig{UniqueID: string(b.Get([]byte(uniqueIDKey)))}
			if value := b.Get([]byte(settingsKey)); value != nil {
				if err := json.Unmarshal(value, &cfg.Settings); err != nil {
					return fmt.Errorf("invalid settings for %s: %v", k, err)
				}
			}
			out[string(k)] = cfg
			return nil
		})
	})

	return out, err
}

// WriteYAML writes the exported configuration of every device to w.
func (s *Store) WriteYAML(w io.Writer) error {
	cfg, err := s.Export()
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return err
	}
	return enc.Close()
}
