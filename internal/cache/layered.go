package cache

import (
	"errors"
	"time"
)

// LayeredCache reads through a list of caches ordered fastest first.
// A hit in a slower layer is copied into every faster one.
type LayeredCache struct {
	layers []Cache
}

// NewLayeredCache stacks an in-process cache over a disk cache in dir
func NewLayeredCache(memoryTTL time.Duration, diskDir string, diskTTL time.Duration) *LayeredCache {
	return &LayeredCache{layers: []Cache{
		NewMemoryCache(memoryTTL, 10*time.Minute),
		NewDiskCache(diskDir, diskTTL),
	}}
}

// Get returns the value from the first layer that has it
func (c *LayeredCache) Get(key string) ([]byte, bool) {
	for i, layer := range c.layers {
		val, ok := layer.Get(key)
		if !ok {
			continue
		}
		for _, faster := range c.layers[:i] {
			_ = faster.Set(key, val, 0)
		}
		return val, true
	}
	return nil, false
}

// Set writes every layer. Only the last (persistent) layer gets ttl; the
// others keep their own default expiry.
func (c *LayeredCache) Set(key string, value []byte, ttl time.Duration) error {
	var errs []error
	last := len(c.layers) - 1
	for i, layer := range c.layers {
		layerTTL := time.Duration(0)
		if i == last {
			layerTTL = ttl
		}
		errs = append(errs, layer.Set(key, value, layerTTL))
	}
	return errors.Join(errs...)
}

// Delete removes key from every layer
func (c *LayeredCache) Delete(key string) error {
	var errs []error
	for _, layer := range c.layers {
		errs = append(errs, layer.Delete(key))
	}
	return errors.Join(errs...)
}

// Clear empties every layer
func (c *LayeredCache) Clear() error {
	var errs []error
	for _, layer := range c.layers {
		errs = append(errs, layer.Clear())
	}
	return errors.Join(errs...)
}
