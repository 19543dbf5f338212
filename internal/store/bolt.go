// Package store persists users and bills in a single bbolt file. It
// implements auth.UserStore and bill.DB.
package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"go.etcd.io/bbolt"

	"github.com/dimasfr/splitbill/internal/auth"
	"github.com/dimasfr/splitbill/internal/bill"
)

const (
	userBucketName      = "users"
	userEmailBucketName = "user_emails"
	billBucketName      = "bills"
)

// BoltDB implements the persistence interfaces using bbolt
type BoltDB struct {
	db *bbolt.DB
}

// NewBoltDB creates a new BoltDB instance
func NewBoltDB(path string) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	// Create buckets if they don't exist
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{userBucketName, userEmailBucketName, billBucketName} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db}, nil
}

// CreateUser stores a new user. Email uniqueness is case-sensitive and
// enforced by the email index inside the same transaction.
func (b *BoltDB) CreateUser(user *auth.User) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		emails := tx.Bucket([]byte(userEmailBucketName))
		if emails.Get([]byte(user.Email)) != nil {
			return auth.ErrEmailTaken
		}

		data, err := json.Marshal(user)
		if err != nil {
			return fmt.Errorf("marshaling user: %w", err)
		}

		if err := tx.Bucket([]byte(userBucketName)).Put([]byte(user.ID), data); err != nil {
			return err
		}
		return emails.Put([]byte(user.Email), []byte(user.ID))
	})
}

// GetUserByEmail retrieves a user by email
func (b *BoltDB) GetUserByEmail(email string) (*auth.User, error) {
	var user *auth.User
	err := b.db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket([]byte(userEmailBucketName)).Get([]byte(email))
		if id == nil {
			return fmt.Errorf("%w: %s", auth.ErrUserNotFound, email)
		}
		data := tx.Bucket([]byte(userBucketName)).Get(id)
		if data == nil {
			return fmt.Errorf("%w: %s", auth.ErrUserNotFound, email)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// GetUserByID retrieves a user by ID
func (b *BoltDB) GetUserByID(id string) (*auth.User, error) {
	var user *auth.User
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(userBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", auth.ErrUserNotFound, id)
		}
		return json.Unmarshal(data, &user)
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// SaveBill stores or overwrites a bill
func (b *BoltDB) SaveBill(record *bill.Bill) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return fmt.Errorf("marshaling bill: %w", err)
		}
		return tx.Bucket([]byte(billBucketName)).Put([]byte(record.ID), data)
	})
}

// GetBill retrieves a bill by ID
func (b *BoltDB) GetBill(id string) (*bill.Bill, error) {
	var record *bill.Bill
	err := b.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(billBucketName)).Get([]byte(id))
		if data == nil {
			return fmt.Errorf("%w: %s", bill.ErrNotFound, id)
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// ListBillsByOwner returns all bills for an owner, newest first
func (b *BoltDB) ListBillsByOwner(ownerID string) ([]*bill.Bill, error) {
	bills := make([]*bill.Bill, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(billBucketName)).ForEach(func(k, v []byte) error {
			var record bill.Bill
			if err := json.Unmarshal(v, &record); err != nil {
				return fmt.Errorf("unmarshaling bill: %w", err)
			}
			if record.OwnerID == ownerID {
				bills = append(bills, &record)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(bills, func(i, j int) bool {
		return bills[i].CreatedAt.After(bills[j].CreatedAt)
	})
	return bills, nil
}

// DeleteBill removes a bill from the database
func (b *BoltDB) DeleteBill(id string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(billBucketName)).Delete([]byte(id))
	})
}

// Close closes the database connection
func (b *BoltDB) Close() error {
	return b.db.Close()
}
