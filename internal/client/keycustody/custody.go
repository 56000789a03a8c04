// Package keycustody holds the per-user data key in memory and implements the
// passphrase wrapping scheme and the record payload codec built on it.
package keycustody

import "sync"

// Custody owns the in-memory data key. Unlock and Clear take the write lock,
// crypto takes the read lock, so a clear waits for in-flight operations and
// every operation after it fails closed.
type Custody struct {
	mu  sync.RWMutex
	dek []byte
	gen uint64
}

// Lease pins the key generation an operation (or a whole sync cycle) started with
type Lease struct {
	gen uint64
}

// New returns an empty custody in the NoKey state
func New() *Custody {
	return &Custody{}
}

// Install copies dek into custody and starts a new generation
func (c *Custody) Install(dek []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	zero(c.dek)
	c.dek = append([]byte(nil), dek...)
	c.gen++
}

// Clear zeroes the key. Leases taken before the clear become stale.
func (c *Custody) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	zero(c.dek)
	c.dek = nil
	c.gen++
}

// Active reports whether a key is installed
func (c *Custody) Active() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.dek != nil
}

// Lease returns a handle to the current key generation
func (c *Custody) Lease() (Lease, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.dek == nil {
		return Lease{}, ErrNoKey
	}
	return Lease{gen: c.gen}, nil
}

// with runs fn on the key while holding the read lock.
// fn must not retain dek.
func (c *Custody) with(l Lease, fn func(dek []byte) error) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if l.gen != c.gen {
		return ErrKeyStale
	}
	if c.dek == nil {
		return ErrNoKey
	}
	return fn(c.dek)
}
