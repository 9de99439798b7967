package storage

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/example/trafficwatch/internal/config"
)

// Constructor returns a fresh, uninitialised provider
type Constructor func() Provider

// Factory creates providers by type and remembers the ones that failed to
// initialise
type Factory struct {
	mu           sync.RWMutex
	constructors map[string]Constructor
	unavailable  map[string]string
}

// NewStorageFactory creates a factory with the built-in providers
func NewStorageFactory() *Factory {
	f := &Factory{
		constructors: make(map[string]Constructor),
		unavailable:  make(map[string]string),
	}
	f.Register(func() Provider { return NewLocalStorage() }, "local")
	f.Register(func() Provider { return NewAmazonS3Storage() }, "s3", "amazon", "aws")
	f.Register(func() Provider { return NewGoogleCloudStorage() }, "gcs", "google")
	return f
}

// Register adds a provider type under one or more names
func (f *Factory) Register(c Constructor, names ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, name := range names {
		f.constructors[strings.ToLower(name)] = c
	}
}

// MarkUnavailable records why a provider type cannot be used
func (f *Factory) MarkUnavailable(providerType, reason string) {
	f.mu.Lock()
	f.unavailable[providerType] = reason
	f.mu.Unlock()
	log.Warn().Str("provider", providerType).Str("reason", reason).Msg("Storage provider marked as unavailable")
}

// IsAvailable reports whether a provider type can still be created
func (f *Factory) IsAvailable(providerType string) (bool, string) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reason, unavailable := f.unavailable[strings.ToLower(providerType)]
	return !unavailable, reason
}

// Types lists the registered provider names
func (f *Factory) Types() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, 0, len(f.constructors))
	for name := range f.constructors {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Create builds and initialises a provider. A provider that fails to
// initialise is marked unavailable and not retried.
func (f *Factory) Create(providerType string, options map[string]string) (Provider, error) {
	providerType = strings.ToLower(providerType)

	f.mu.RLock()
	reason, unavailable := f.unavailable[providerType]
	c, ok := f.constructors[providerType]
	f.mu.RUnlock()

	if unavailable {
		return nil, fmt.Errorf("%s provider is currently unavailable: %s", providerType, reason)
	}
	if !ok {
		return nil, fmt.Errorf("unsupported storage provider type: %s", providerType)
	}

	p := c()
	if err := p.Initialize(options); err != nil {
		f.MarkUnavailable(providerType, err.Error())
		return nil, fmt.Errorf("failed to initialize %s storage provider: %w", providerType, err)
	}
	log.Info().Str("provider", p.Type()).Msg("Evidence archive ready")
	return p, nil
}

// FromConfig creates the provider selected in cfg with its options
func (f *Factory) FromConfig(cfg config.StorageConfig) (Provider, error) {
	var options map[string]string
	switch strings.ToLower(cfg.Provider) {
	case "", "local":
		options = cfg.Local
	case "s3", "amazon", "aws":
		options = cfg.S3
	case "gcs", "google":
		options = cfg.Google
	}
	provider := cfg.Provider
	if provider == "" {
		provider = "local"
	}
	return f.Create(provider, options)
}

// DefaultFactory is the process-wide factory
var DefaultFactory = NewStorageFactory()

// CreateProvider uses the default factory
func CreateProvider(providerType string, options map[string]string) (Provider, error) {
	return DefaultFactory.Create(providerType, options)
}

// FromConfig uses the default factory
func FromConfig(cfg config.StorageConfig) (Provider, error) {
	return DefaultFactory.FromConfig(cfg)
}
