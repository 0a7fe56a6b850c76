package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/itemstored/internal/model"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketCollections = []byte("collections")
	bucketItems       = []byte("items")
	bucketParts       = []byte("parts") // sequence source for external payload file ids; parts live in the item records
	bucketTags        = []byte("tags")
	bucketRelations   = []byte("relations")
	bucketResources   = []byte("resources")
	bucketSettings    = []byte("settings") // legacy key/value migration target
)

// Store is the transactional façade over BoltDB.
type Store struct {
	db *bolt.DB
	// writeSem serializes Begin(writable) acquisition so callers block
	// behind a context deadline instead of bbolt's unbounded internal lock.
	writeSem chan struct{}

	// payloadDir holds external payload files; parts whose inline bytes
	// reach payloadThreshold are spilled there.
	payloadDir       string
	payloadThreshold int64
}

// Open creates or opens the BoltDB-backed store at dataDir/items.db.
func Open(dataDir string) (*Store, error) {
	dbPath := filepath.Join(dataDir, "items.db")
	db, err := bolt.Open(dbPath, 0600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCollections, bucketItems, bucketParts, bucketTags, bucketRelations, bucketResources, bucketSettings} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	payloadDir := filepath.Join(dataDir, "payloads")
	if err := os.MkdirAll(payloadDir, 0o700); err != nil {
		db.Close()
		return nil, fmt.Errorf("create payload dir: %w", err)
	}

	return &Store{
		db:               db,
		writeSem:         make(chan struct{}, 1),
		payloadDir:       payloadDir,
		payloadThreshold: DefaultExternalPayloadThreshold,
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// Tx wraps a single BoltDB transaction. Commit/Rollback delegate to it;
// writable transactions also release the Store's write semaphore.
type Tx struct {
	btx      *bolt.Tx
	store    *Store
	writable bool
	done     bool
	started  time.Time
}

// Age reports how long the transaction has been open, for duration
// metrics observed at commit time.
func (tx *Tx) Age() time.Duration { return time.Since(tx.started) }

// Writable reports whether the transaction holds the write slot.
func (tx *Tx) Writable() bool { return tx.writable }

// Begin starts a new transaction. ctx's deadline bounds how long the
// caller waits for the (single, process-wide) writable transaction slot;
// a timeout surfaces as model.ErrRetryableStore so callers can retry.
func (s *Store) Begin(ctx context.Context, writable bool) (*Tx, error) {
	if writable {
		select {
		case s.writeSem <- struct{}{}:
		case <-ctx.Done():
			return nil, fmt.Errorf("acquire write transaction: %w", model.ErrRetryableStore)
		}
	}

	btx, err := s.db.Begin(writable)
	if err != nil {
		if writable {
			<-s.writeSem
		}
		return nil, fmt.Errorf("begin transaction: %w", err)
	}

	return &Tx{btx: btx, store: s, writable: writable, started: time.Now()}, nil
}

// Commit commits the underlying transaction.
func (tx *Tx) Commit() error {
	if tx.done {
		return fmt.Errorf("commit: %w", model.ErrNoTransaction)
	}
	tx.done = true
	err := tx.btx.Commit()
	if tx.writable {
		<-tx.store.writeSem
	}
	return err
}

// Rollback aborts the underlying transaction, releasing any write slot.
func (tx *Tx) Rollback() error {
	if tx.done {
		return nil
	}
	tx.done = true
	err := tx.btx.Rollback()
	if tx.writable {
		<-tx.store.writeSem
	}
	return err
}

// Stats reports bucket cardinalities for the metrics collector.
type Stats struct {
	Items       int
	Collections int
	Tags        int
	Resources   int
}

// Stats scans bucket key counts. It is O(n) in the number of records and
// intended for periodic collection, not the request path.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := s.withTx(ctx, nil, false, func(t *Tx) error {
		st.Items = t.btx.Bucket(bucketItems).Stats().KeyN
		st.Collections = t.btx.Bucket(bucketCollections).Stats().KeyN
		st.Tags = t.btx.Bucket(bucketTags).Stats().KeyN
		st.Resources = t.btx.Bucket(bucketResources).Stats().KeyN
		return nil
	})
	return st, err
}

// withTx runs fn against tx if non-nil, otherwise opens and closes an
// implicit transaction of the requested writability around fn.
func (s *Store) withTx(ctx context.Context, tx *Tx, writable bool, fn func(*Tx) error) error {
	if tx != nil {
		return fn(tx)
	}
	t, err := s.Begin(ctx, writable)
	if err != nil {
		return err
	}
	if err := fn(t); err != nil {
		_ = t.Rollback()
		return err
	}
	return t.Commit()
}
