package provider

import (
	"fmt"
	"sort"
	"sync"

	"github.com/everstacklabs/modelwatch/internal/config"
	"github.com/everstacklabs/modelwatch/internal/httpclient"
)

// Builder constructs a Fetcher from its config.
type Builder func(spec config.ProviderSpec, client *httpclient.Client) (Fetcher, error)

var (
	mu       sync.RWMutex
	builders = make(map[string]Builder)
)

// Register adds an adapter kind to the global registry. Adapter packages
// call this from init; callers blank-import the packages they want.
func Register(kind string, b Builder) {
	mu.Lock()
	defer mu.Unlock()
	builders[kind] = b
}

// New builds a Fetcher for the given spec.
func New(spec config.ProviderSpec, client *httpclient.Client) (Fetcher, error) {
	mu.RLock()
	b, ok := builders[spec.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown adapter kind: %s", spec.Kind)
	}
	return b(spec, client)
}

// Kinds returns all registered adapter kinds, sorted.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	kinds := make([]string, 0, len(builders))
	for k := range builders {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}
