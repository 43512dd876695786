// Package service contains the persistence-backed parts of the auth core:
// credential records, one-time tokens, the consent log and outbound mail
package service

import (
	"errors"
	"fmt"
)

var (
	ErrNoUserID      = errors.New("no user ID provided")
	ErrNotFound      = errors.New("record not found")
	ErrEmailTaken    = errors.New("email already registered")
	ErrTokenNotFound = errors.New("one-time token not found")
	ErrTokenExpired  = errors.New("one-time token expired")
	ErrTokenConsumed = errors.New("one-time token already consumed")
)

// StorageError wraps a failure of the database layer. It is never retried
// internally.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s, %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func storageErr(op string, err error) error {
	return &StorageError{Op: op, Err: err}
}
