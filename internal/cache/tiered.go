package cache

import "time"

// Tiered chains cache layers from fastest to slowest. A hit in a lower layer
// is copied into the layers above it with its original timestamp, so the
// value expires at the same moment everywhere.
type Tiered[K comparable, V any] struct {
	layers []Layer[K, V]
	now    Clock
}

// NewTiered builds a tiered cache. Nil layers are skipped.
func NewTiered[K comparable, V any](now Clock, layers ...Layer[K, V]) *Tiered[K, V] {
	if now == nil {
		now = time.Now
	}
	t := &Tiered[K, V]{now: now}
	for _, l := range layers {
		if l != nil {
			t.layers = append(t.layers, l)
		}
	}
	return t
}

// Get returns the first fresh value found, walking down the layers.
func (t *Tiered[K, V]) Get(key K) (V, bool) {
	for i, l := range t.layers {
		value, at, ok := l.Lookup(key)
		if !ok {
			continue
		}
		for _, upper := range t.layers[:i] {
			upper.Store(key, value, at)
		}
		return value, true
	}
	var zero V
	return zero, false
}

// Set writes the value to every layer with the current time.
func (t *Tiered[K, V]) Set(key K, value V) {
	at := t.now()
	for _, l := range t.layers {
		l.Store(key, value, at)
	}
}
