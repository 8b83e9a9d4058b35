package storage

import (
	"errors"
	"time"
)

var (
	ErrDisabled = errors.New("storage disabled")
	ErrClosed   = errors.New("storage closed")
)

// Config configures storage.
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver string
	Path   string // file, sqlite

	BusyTimeout time.Duration // sqlite only; 0 means default

	// Redis only.
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
}
