package index

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Store persists the current snapshot so the process can restore it on
// restart. Load returns (nil, nil) when nothing has been persisted yet.
type Store interface {
	Save(ctx context.Context, snap *Snapshot) error
	Load(ctx context.Context) (*Snapshot, error)
}

type StoreFactory func(args interface{}) (Store, error)

var (
	storeRegistryMu sync.RWMutex
	storeRegistry   = map[string]StoreFactory{}
)

func RegisterStore(name string, factory StoreFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	storeRegistryMu.Lock()
	storeRegistry[key] = factory
	storeRegistryMu.Unlock()
}

func NewStore(typ string, args interface{}) (Store, error) {
	key := strings.ToLower(strings.TrimSpace(typ))
	if key == "" {
		return nil, fmt.Errorf("snapshot.type is required")
	}
	storeRegistryMu.RLock()
	factory := storeRegistry[key]
	storeRegistryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("unsupported snapshot store type: %s", typ)
	}
	return factory(args)
}

func decodeStoreConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("snapshot store config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode snapshot store config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode snapshot store config: %w", err)
	}
	return nil
}
