package index

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const snapshotFileName = "snapshot.json"

type localStoreConfig struct {
	Dir string `json:"dir"`
}

type localStore struct {
	dir string
}

func init() {
	RegisterStore("local", createLocalStore)
}

func createLocalStore(args interface{}) (Store, error) {
	cfg := &localStoreConfig{}
	if err := decodeStoreConfig(args, cfg); err != nil {
		return nil, err
	}
	if cfg.Dir == "" {
		return nil, fmt.Errorf("local snapshot store dir is required")
	}
	return &localStore{dir: cfg.Dir}, nil
}

func (s *localStore) Save(ctx context.Context, snap *Snapshot) error {
	_ = ctx
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	// write-then-rename so a crash never leaves a torn snapshot file
	tmp := filepath.Join(s.dir, snapshotFileName+".tmp")
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(s.dir, snapshotFileName))
}

func (s *localStore) Load(ctx context.Context) (*Snapshot, error) {
	_ = ctx
	data, err := os.ReadFile(filepath.Join(s.dir, snapshotFileName))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode persisted snapshot: %w", err)
	}
	if snap.DocFreq == nil {
		snap.DocFreq = map[string]int{}
	}
	return &snap, nil
}
