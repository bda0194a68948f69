//go:build !deadlock

// Package syncutil provides the mutex types used across groundlink.
// Plain sync types are used by default. Build with -tags=deadlock to swap in
// github.com/sasha-s/go-deadlock and catch lock-order bugs between the
// interface read loop, writers, and the listener.
package syncutil

import "sync"

// Mutex is a sync.Mutex unless built with the deadlock tag.
type Mutex struct {
	sync.Mutex
}

// RWMutex is a sync.RWMutex unless built with the deadlock tag.
type RWMutex struct {
	sync.RWMutex
}
