// Package storage provides the durable per-tab key/value store used for
// message persistence and lightweight visit/user-data tracking.
package storage

// Store is a per-tab key/value store with best-effort durability.
// Implementations must be safe for concurrent use. Failures are reported
// but callers treat them as non-fatal: a storage failure must never crash
// the conversation.
type Store interface {
	// Get returns the value for key, or "" and false if absent.
	Get(key string) (string, bool)

	// Set stores value under key, replacing any existing value.
	Set(key, value string) error

	// Remove deletes key. Removing an absent key is not an error.
	Remove(key string) error
}

// Namespace prefixes all keys with a fixed namespace so multiple widgets
// sharing one store do not collide.
type Namespace struct {
	store  Store
	prefix string
}

// NewNamespace wraps store with a key prefix.
func NewNamespace(store Store, prefix string) *Namespace {
	return &Namespace{store: store, prefix: prefix}
}

func (n *Namespace) key(key string) string {
	return n.prefix + ":" + key
}

// Get returns the namespaced value for key.
func (n *Namespace) Get(key string) (string, bool) {
	return n.store.Get(n.key(key))
}

// Set stores value under the namespaced key.
func (n *Namespace) Set(key, value string) error {
	return n.store.Set(n.key(key), value)
}

// Remove deletes the namespaced key.
func (n *Namespace) Remove(key string) error {
	return n.store.Remove(n.key(key))
}
