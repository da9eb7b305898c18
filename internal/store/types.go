// Package store provides the persisted key-value settings used by the desktop client.
package store

import "time"

// Settings is a string-keyed store of small persisted values.
//
// A missing key is reported with ok == false and a nil error.
type Settings interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// Setting is a single persisted entry.
type Setting struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
