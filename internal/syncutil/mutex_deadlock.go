//go:build deadlock

// Package syncutil provides the mutex types used across groundlink.
// This file is compiled with -tags=deadlock.
package syncutil

import deadlock "github.com/sasha-s/go-deadlock"

// Mutex reports potential deadlocks.
type Mutex struct {
	deadlock.Mutex
}

// RWMutex reports potential deadlocks.
type RWMutex struct {
	deadlock.RWMutex
}
