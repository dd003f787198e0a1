// Package bolt stores companies in an embedded BoltDB file for single-node
// deployments. Secondary index buckets keep name and API key unique.
package bolt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boltdb/bolt"
	json "github.com/json-iterator/go"

	"github.com/dmehra2102/Trust-Settlement-System/internal/authority/domain"
	"github.com/dmehra2102/Trust-Settlement-System/pkg/apperr"
)

var (
	bucketCompanies = []byte("companies")
	bucketByName    = []byte("companies_by_name")
	bucketByKey     = []byte("companies_by_api_key")
)

type record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	APIKey       string    `json:"apiKey"`
	SecretDigest string    `json:"secretDigest"`
	CreatedAt    time.Time `json:"createdAt"`
}

func toRecord(c domain.Company) record {
	return record{ID: c.ID, Name: c.Name, APIKey: c.APIKey, SecretDigest: c.SecretDigest, CreatedAt: c.CreatedAt}
}

type Repository struct {
	db *bolt.DB
}

func Open(path string) (*Repository, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketCompanies, bucketByName, bucketByKey} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error { return r.db.Close() }

func (r *Repository) Add(_ context.Context, c domain.Company) error {
	raw, err := json.Marshal(toRecord(c))
	if err != nil {
		return err
	}
	return r.db.Update(func(tx *bolt.Tx) error {
		byName := tx.Bucket(bucketByName)
		byKey := tx.Bucket(bucketByKey)
		if byName.Get([]byte(c.Name)) != nil {
			return fmt.Errorf("%w: company name", apperr.ErrConflict)
		}
		if byKey.Get([]byte(c.APIKey)) != nil {
			return fmt.Errorf("%w: api key", apperr.ErrConflict)
		}
		if err := tx.Bucket(bucketCompanies).Put([]byte(c.ID), raw); err != nil {
			return err
		}
		if err := byName.Put([]byte(c.Name), []byte(c.ID)); err != nil {
			return err
		}
		return byKey.Put([]byte(c.APIKey), []byte(c.ID))
	})
}

func decode(raw []byte) (domain.Company, error) {
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return domain.Company{}, err
	}
	return domain.Company{
		ID:           rec.ID,
		Name:         rec.Name,
		APIKey:       rec.APIKey,
		SecretDigest: rec.SecretDigest,
		CreatedAt:    rec.CreatedAt,
	}, nil
}

var errNotFound = fmt.Errorf("%w: company", apperr.ErrNotFound)

func (r *Repository) GetByID(_ context.Context, id string) (domain.Company, error) {
	var c domain.Company
	err := r.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketCompanies).Get([]byte(id))
		if raw == nil {
			return errNotFound
		}
		var err error
		c, err = decode(raw)
		return err
	})
	return c, err
}

func (r *Repository) byIndex(index []byte, value string) (domain.Company, error) {
	var c domain.Company
	err := r.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(index).Get([]byte(value))
		if id == nil {
			return errNotFound
		}
		raw := tx.Bucket(bucketCompanies).Get(id)
		if raw == nil {
			return errors.New("dangling company index entry")
		}
		var err error
		c, err = decode(raw)
		return err
	})
	return c, err
}

func (r *Repository) GetByName(_ context.Context, name string) (domain.Company, error) {
	return r.byIndex(bucketByName, name)
}

func (r *Repository) GetByAPIKey(_ context.Context, apiKey string) (domain.Company, error) {
	return r.byIndex(bucketByKey, apiKey)
}

// List walks the name index, which bolt keeps in byte order.
func (r *Repository) List(_ context.Context, offset, limit int) ([]domain.Company, error) {
	var out []domain.Company
	err := r.db.View(func(tx *bolt.Tx) error {
		companies := tx.Bucket(bucketCompanies)
		cur := tx.Bucket(bucketByName).Cursor()
		i := 0
		for k, id := cur.First(); k != nil && len(out) < limit; k, id = cur.Next() {
			if i++; i <= offset {
				continue
			}
			c, err := decode(companies.Get(id))
			if err != nil {
				return err
			}
			out = append(out, c)
		}
		return nil
	})
	return out, err
}
