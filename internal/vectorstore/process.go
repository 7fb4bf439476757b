package vectorstore

import (
	"sync"

	"go.uber.org/zap"
)

var (
	sharedMu    sync.Mutex
	sharedStore *Store
)

// Init opens the process-wide Store on first call and returns it. Later
// calls return the same Store and ignore their arguments. A failed open is
// not remembered, so Init may be retried.
func Init(cfg Config, logger *zap.Logger) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedStore != nil {
		return sharedStore, nil
	}
	s, err := Open(cfg, logger)
	if err != nil {
		return nil, err
	}
	sharedStore = s
	return s, nil
}

// Shared returns the process-wide Store, or ErrNotInitialized before Init.
func Shared() (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedStore == nil {
		return nil, ErrNotInitialized
	}
	return sharedStore, nil
}

// Shutdown flushes and closes the process-wide Store. It is meant for
// process exit.
func Shutdown() error {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if sharedStore == nil {
		return nil
	}
	err := sharedStore.Close()
	sharedStore = nil
	return err
}
