// Package storage provides a persistent warehouse for raw scraped rental
// listings, using BoltDB as the underlying engine. Scraper output lands
// here as free-text records, one bucket per pipeline variant, and is
// exported as a merged CSV for the data processors to consume.
package storage

import (
	"encoding/binary"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.etcd.io/bbolt"
)

// Bucket names, one per pipeline variant.
const (
	propertyBucket = "property_listings"
	sharedBucket   = "shared_listings"
)

// Listing is a raw scraped record. Price, beds and baths stay free text
// exactly as scrapers produce them; cleaning happens downstream in the
// data processor.
type Listing struct {
	Price     string    `json:"price"`
	Beds      string    `json:"beds"`
	Baths     string    `json:"baths"`
	PropType  string    `json:"prop_type"`
	Address   string    `json:"address"`
	RoomType  string    `json:"room_type,omitempty"`
	Source    string    `json:"source,omitempty"`
	ScrapedAt time.Time `json:"scraped_at,omitempty"`
}

// Store wraps the BoltDB database holding raw listings.
type Store struct {
	db *bbolt.DB
}

// New opens (creating if needed) the listing database under dataPath.
func New(dataPath string) (*Store, error) {
	dbPath := filepath.Join(dataPath, "listings.db")

	db, err := bbolt.Open(dbPath, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{propertyBucket, sharedBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// Close closes the database connection gracefully.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func bucketFor(variant string) (string, error) {
	switch variant {
	case "property":
		return propertyBucket, nil
	case "shared":
		return sharedBucket, nil
	default:
		return "", fmt.Errorf("unknown pipeline variant %q", variant)
	}
}

// PutListing appends one raw listing to the variant's bucket under a
// monotonic sequence key.
func (s *Store) PutListing(variant string, l Listing) error {
	bucket, err := bucketFor(variant)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucket))

		seq, err := b.NextSequence()
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		key := make([]byte, 8)
		binary.BigEndian.PutUint64(key, seq)

		data, err := json.Marshal(l)
		if err != nil {
			return fmt.Errorf("marshal listing: %w", err)
		}
		return b.Put(key, data)
	})
}

// CountListings returns the number of stored listings for a variant.
func (s *Store) CountListings(variant string) (int, error) {
	bucket, err := bucketFor(variant)
	if err != nil {
		return 0, err
	}
	var count int
	err = s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket([]byte(bucket)).Stats().KeyN
		return nil
	})
	return count, err
}

// Listings returns every stored listing for a variant in insertion order.
func (s *Store) Listings(variant string) ([]Listing, error) {
	bucket, err := bucketFor(variant)
	if err != nil {
		return nil, err
	}
	var out []Listing
	err = s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(bucket)).ForEach(func(k, v []byte) error {
			var l Listing
			if err := json.Unmarshal(v, &l); err != nil {
				return nil // skip malformed records
			}
			out = append(out, l)
			return nil
		})
	})
	return out, err
}

// ImportCSV ingests a scraper CSV file into the variant's bucket and
// returns the number of rows stored. Column lookup is by header name so
// scraper files with extra columns import cleanly.
func (s *Store) ImportCSV(variant, path, source string) (int, error) {
	if _, err := bucketFor(variant); err != nil {
		return 0, err
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("read header: %w", err)
	}
	indices := make(map[string]int, len(header))
	for i, col := range header {
		indices[strings.TrimSpace(col)] = i
	}
	field := func(rec []string, name string) string {
		i, ok := indices[name]
		if !ok || i >= len(rec) {
			return ""
		}
		return rec[i]
	}

	now := time.Now().UTC()
	count := 0
	for {
		rec, err := reader.Read()
		if err != nil {
			break
		}
		l := Listing{
			Price:     field(rec, "price"),
			Beds:      field(rec, "beds"),
			Baths:     field(rec, "baths"),
			PropType:  field(rec, "prop_type"),
			Address:   field(rec, "address"),
			RoomType:  field(rec, "room_type"),
			Source:    source,
			ScrapedAt: now,
		}
		if err := s.PutListing(variant, l); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}

// ExportCSV writes every listing of a variant as one training CSV in the
// column layout the data processors expect. Returns the row count.
func (s *Store) ExportCSV(variant, path string) (int, error) {
	listings, err := s.Listings(variant)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create export dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"price", "beds", "baths", "prop_type", "address", "room_type"}); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, l := range listings {
		row := []string{l.Price, l.Beds, l.Baths, l.PropType, l.Address, l.RoomType}
		if err := w.Write(row); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return 0, fmt.Errorf("flush export: %w", err)
	}
	return len(listings), nil
}
