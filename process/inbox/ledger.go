package inbox

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"go.etcd.io/bbolt"
)

const ledgerBucket = "processed"

// Entry is what the ledger remembers about one receipt file.
type Entry struct {
	File        string    `json:"file"`
	ProcessedAt time.Time `json:"processedAt"`
	Amount      *float64  `json:"amount,omitempty"`
	Currency    *string   `json:"currency,omitempty"`
	Confidence  float64   `json:"confidence"`
}

// Ledger records processed files by content hash so a renamed or re-dropped
// receipt is not scanned twice.
type Ledger struct {
	db *bbolt.DB
}

// OpenLedger opens (or creates) the bbolt file at path.
func OpenLedger(path string) (*Ledger, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(ledgerBucket))
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating ledger bucket: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Lookup returns the entry stored for sum, if any.
func (l *Ledger) Lookup(sum string) (*Entry, bool, error) {
	var e *Entry
	err := l.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(ledgerBucket)).Get([]byte(sum))
		if data == nil {
			return nil
		}
		e = &Entry{}
		return json.Unmarshal(data, e)
	})
	if err != nil {
		return nil, false, fmt.Errorf("reading ledger: %w", err)
	}
	return e, e != nil, nil
}

// Record stores e under sum, replacing any previous entry.
func (l *Ledger) Record(sum string, e Entry) error {
	return l.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		return tx.Bucket([]byte(ledgerBucket)).Put([]byte(sum), data)
	})
}

// Len reports how many files have been recorded.
func (l *Ledger) Len() (int, error) {
	n := 0
	err := l.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket([]byte(ledgerBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func (l *Ledger) Close() error {
	return l.db.Close()
}

// fileSum is the hex SHA-256 of the file at path.
func fileSum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
