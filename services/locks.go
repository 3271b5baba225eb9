// services/locks.go
package services

import "sync"

// keyedMutex hands out one mutex per string key. Used to serialize imports
// per user and orphan promotion per match key. Entries are never reclaimed;
// the key space (users, pending orphan signatures) is small and bounded.
type keyedMutex struct {
	mus sync.Map
}

// Lock locks the mutex for key and returns the matching unlock.
func (k *keyedMutex) Lock(key string) func() {
	v, _ := k.mus.LoadOrStore(key, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// importLocks serializes all score-mutating work per user. Imports and
// reverts must share the same mutex set, so it lives at package level rather
// than per service instance.
var importLocks keyedMutex
