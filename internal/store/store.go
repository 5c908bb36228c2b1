// Package store defines the atomic key-value contract the questionnaire
// engine runs on, with an in-memory backend for tests and a BadgerDB
// backend for production.
//
// Keys are flat strings of the form "entityType:identifier". Three value
// shapes exist: counters (Incr), hashes (HSet/HGetAll) and sets
// (SAdd/SMembers). DeleteIfExists is the primitive that makes session
// finalization exactly-once: it atomically removes a key and reports
// whether it was present.
package store

import "context"

type Store interface {
	// Incr atomically increments the counter at key and returns the new
	// value. A missing key counts as zero.
	Incr(ctx context.Context, key string) (int64, error)

	// HSet writes a single hash field.
	HSet(ctx context.Context, key, field, value string) error

	// HSetAll writes every field in fields into the hash at key,
	// creating the hash if needed. Fields not listed are left alone.
	HSetAll(ctx context.Context, key string, fields map[string]string) error

	// HGetAll returns all fields of the hash at key, or a nil map when
	// the key does not exist.
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// SAdd adds members to the set at key.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from the set at key. Removing the last member
	// removes the key itself.
	SRem(ctx context.Context, key string, members ...string) error

	// SMembers returns the members of the set at key, in no particular
	// order. A missing key yields an empty slice.
	SMembers(ctx context.Context, key string) ([]string, error)

	// DeleteIfExists removes key and reports whether it existed at the
	// moment of removal. The check and the removal are one atomic step.
	DeleteIfExists(ctx context.Context, key string) (bool, error)

	// Keys returns every key with the given prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)

	Close() error
}
