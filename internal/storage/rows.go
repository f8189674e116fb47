// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/vexlabs/vex/internal/vexerr"
)

// Put marshals value as JSON and writes it under table/tenant/id.
func (d *DB) Put(ctx context.Context, table Table, tenant, id string, value any) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return vexerr.Wrap(vexerr.Input, "storage.Put", "marshal row", err)
	}
	err = d.Update(ctx, func(txn *badger.Txn) error {
		return txn.Set(Key(table, tenant, id), buf)
	})
	if err != nil {
		return vexerr.Wrap(vexerr.Storage, "storage.Put", fmt.Sprintf("%s/%s/%s", table, tenant, id), err)
	}
	return nil
}

// Get reads and unmarshals the row at table/tenant/id into dst. It returns
// (false, nil) when the row does not exist.
func (d *DB) Get(ctx context.Context, table Table, tenant, id string, dst any) (bool, error) {
	var found bool
	err := d.View(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(Key(table, tenant, id))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, dst)
		})
	})
	if err != nil {
		return false, vexerr.Wrap(vexerr.Storage, "storage.Get", fmt.Sprintf("%s/%s/%s", table, tenant, id), err)
	}
	return found, nil
}

// Delete removes the row at table/tenant/id, if present.
func (d *DB) Delete(ctx context.Context, table Table, tenant, id string) error {
	err := d.Update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(Key(table, tenant, id))
	})
	if err != nil {
		return vexerr.Wrap(vexerr.Storage, "storage.Delete", fmt.Sprintf("%s/%s/%s", table, tenant, id), err)
	}
	return nil
}

// Scan invokes fn with the raw value of every row in table belonging to
// tenant, in key order. fn returning an error stops the scan and is
// propagated.
func (d *DB) Scan(ctx context.Context, table Table, tenant string, fn func(id string, value []byte) error) error {
	err := d.View(ctx, func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := Prefix(table, tenant)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.Key()
			id := string(key[len(prefix):])
			// Tip pointers live under the same table prefix, either at the
			// tenant level or nested per entity; neither is a row.
			if id == "__tip__" || strings.HasSuffix(id, "/__tip__") {
				continue
			}
			if err := item.Value(func(val []byte) error {
				return fn(id, val)
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return vexerr.Wrap(vexerr.Storage, "storage.Scan", fmt.Sprintf("%s/%s", table, tenant), err)
	}
	return nil
}

// PutRowWithTip writes a row and advances the tip pointer for tipScope in
// one transaction. The audit ledger's append depends on this commit being
// atomic: a row without its tip (or the reverse) would let the next append
// fork the chain off a stale tip.
func (d *DB) PutRowWithTip(ctx context.Context, table Table, tenant, id string, value any, tipScope string) error {
	buf, err := json.Marshal(value)
	if err != nil {
		return vexerr.Wrap(vexerr.Input, "storage.PutRowWithTip", "marshal row", err)
	}
	err = d.Update(ctx, func(txn *badger.Txn) error {
		if err := txn.Set(Key(table, tenant, id), buf); err != nil {
			return err
		}
		return txn.Set(SequenceKey(table, tipScope), []byte(id))
	})
	if err != nil {
		return vexerr.Wrap(vexerr.Storage, "storage.PutRowWithTip", fmt.Sprintf("%s/%s/%s", table, tenant, id), err)
	}
	return nil
}

// GetTip reads tenant's tip pointer. ok is false when no events exist yet.
func (d *DB) GetTip(ctx context.Context, table Table, tenant string) (id string, ok bool, err error) {
	verr := d.View(ctx, func(txn *badger.Txn) error {
		item, e := txn.Get(SequenceKey(table, tenant))
		if e == badger.ErrKeyNotFound {
			return nil
		}
		if e != nil {
			return e
		}
		ok = true
		return item.Value(func(val []byte) error {
			id = string(val)
			return nil
		})
	})
	if verr != nil {
		return "", false, vexerr.Wrap(vexerr.Storage, "storage.GetTip", tenant, verr)
	}
	return id, ok, nil
}
