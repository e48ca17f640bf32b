package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	bolt "go.etcd.io/bbolt"
)

var (
	// Bucket names
	bucketCookies = []byte("cookies")
	bucketState   = []byte("state")
)

const (
	// DBFile is the database file name inside the data directory
	DBFile = "kvdeck.db"

	activeClusterPrefix = "active_cluster:"
)

// BoltStore implements Store interface using BoltDB
type BoltStore struct {
	db     *bolt.DB
	sealer Sealer
}

// NewBoltStore creates a new BoltDB-backed store. Cookie jars are sealed
// with sealer when it is non-nil.
func NewBoltStore(dataDir string, sealer Sealer) (*BoltStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, DBFile)

	// A second kvdeck process holding the lock fails fast instead of hanging
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketCookies, bucketState} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", bucket, err)
			}
		}
		return nil
	})

	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, sealer: sealer}, nil
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

// Cookie operations
func (s *BoltStore) SaveCookies(server string, cookies []Cookie) error {
	if len(cookies) == 0 {
		return s.DeleteCookies(server)
	}

	data, err := sonic.Marshal(cookies)
	if err != nil {
		return fmt.Errorf("failed to encode cookies: %w", err)
	}

	if s.sealer != nil {
		data, err = s.sealer.EncryptSecret(data)
		if err != nil {
			return fmt.Errorf("failed to seal cookies: %w", err)
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCookies).Put([]byte(server), data)
	})
}

func (s *BoltStore) LoadCookies(server string) ([]Cookie, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketCookies).Get([]byte(server))
		if v != nil {
			// Bolt values are only valid for the life of the transaction
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil || data == nil {
		return nil, err
	}

	if s.sealer != nil {
		data, err = s.sealer.DecryptSecret(data)
		if err != nil {
			return nil, fmt.Errorf("failed to open cookies: %w", err)
		}
	}

	var cookies []Cookie
	if err := sonic.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("failed to decode cookies: %w", err)
	}
	return cookies, nil
}

func (s *BoltStore) DeleteCookies(server string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCookies).Delete([]byte(server))
	})
}

// Active cluster operations
func (s *BoltStore) SetActiveCluster(server string, clusterID int64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketState)
		return b.Put([]byte(activeClusterPrefix+server), []byte(strconv.FormatInt(clusterID, 10)))
	})
}

func (s *BoltStore) GetActiveCluster(server string) (int64, error) {
	var id int64
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketState).Get([]byte(activeClusterPrefix + server))
		if v == nil {
			return ErrNotFound
		}
		parsed, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("corrupt active cluster entry: %w", err)
		}
		id = parsed
		return nil
	})
	return id, err
}

func (s *BoltStore) ClearActiveCluster(server string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketState).Delete([]byte(activeClusterPrefix + server))
	})
}
