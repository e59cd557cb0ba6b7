// Package storage persists account snapshots (margin ledger, delegates and
// pending conditional orders) in Pebble, so a restarted node resumes with
// the same accounts and re-registers their automation tasks.
package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/perpkit/smartmargin/pkg/account"
)

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

// keys: a:<20-byte-address>
func accountKey(addr common.Address) []byte {
	return append([]byte("a:"), addr.Bytes()...)
}

func (s *PebbleStore) SaveAccount(acct *account.Account) error {
	data, err := json.Marshal(acct)
	if err != nil {
		return fmt.Errorf("marshal account: %w", err)
	}
	if err := s.db.Set(accountKey(acct.Address), data, pebble.Sync); err != nil {
		return fmt.Errorf("save account: %w", err)
	}
	return nil
}

// LoadAccount loads a single account; returns nil if absent.
func (s *PebbleStore) LoadAccount(addr common.Address) (*account.Account, error) {
	data, closer, err := s.db.Get(accountKey(addr))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account: %w", err)
	}
	defer closer.Close()

	var acct account.Account
	if err := json.Unmarshal(data, &acct); err != nil {
		return nil, fmt.Errorf("unmarshal account: %w", err)
	}
	return &acct, nil
}

// LoadAccounts scans all persisted accounts.
func (s *PebbleStore) LoadAccounts() ([]*account.Account, error) {
	prefix := []byte("a:")
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*account.Account
	for iter.First(); iter.Valid(); iter.Next() {
		var acct account.Account
		if err := json.Unmarshal(iter.Value(), &acct); err != nil {
			return nil, fmt.Errorf("unmarshal account at %x: %w", iter.Key(), err)
		}
		out = append(out, &acct)
	}
	return out, iter.Error()
}

func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

var _ account.Store = (*PebbleStore)(nil)
