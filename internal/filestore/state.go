package filestore

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/pricewatch/scan-core/internal/domain"
	"github.com/pricewatch/scan-core/internal/pkg/errors"
)

// stateRecord is one persisted NotificationState entry, flattened with its
// key for JSON array storage (a Go map with a struct key has no direct JSON
// encoding).
type stateRecord struct {
	Key   domain.StateKey          `json:"key"`
	State domain.NotificationState `json:"state"`
}

// StateStore implements contract.NotificationStateStore by reading and
// rewriting a single JSON array file on every flush. Safe for one cycle at
// a time; it holds no lock across cycles.
type StateStore struct {
	path string
	mu   sync.Mutex
}

func NewStateStore(path string) *StateStore {
	return &StateStore{path: path}
}

func (s *StateStore) LoadNotificationStates(_ context.Context, productIDs []string) (map[domain.StateKey]domain.NotificationState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wanted := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		wanted[id] = struct{}{}
	}

	records, err := s.readAll()
	if err != nil {
		return nil, err
	}

	out := make(map[domain.StateKey]domain.NotificationState)
	for _, r := range records {
		if _, ok := wanted[r.Key.ProductID]; !ok {
			continue
		}
		out[r.Key] = r.State
	}
	return out, nil
}

func (s *StateStore) UpsertNotificationStates(_ context.Context, upserts map[domain.StateKey]domain.NotificationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}

	index := make(map[domain.StateKey]int, len(records))
	for i, r := range records {
		index[r.Key] = i
	}
	for key, state := range upserts {
		if i, ok := index[key]; ok {
			records[i].State = state
			continue
		}
		records = append(records, stateRecord{Key: key, State: state})
	}
	return s.writeAll(records)
}

func (s *StateStore) DeleteNotificationStates(_ context.Context, keys []domain.StateKey) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.readAll()
	if err != nil {
		return err
	}

	toDelete := make(map[domain.StateKey]struct{}, len(keys))
	for _, k := range keys {
		toDelete[k] = struct{}{}
	}

	kept := records[:0]
	for _, r := range records {
		if _, ok := toDelete[r.Key]; ok {
			continue
		}
		kept = append(kept, r)
	}
	return s.writeAll(kept)
}

func (s *StateStore) readAll() ([]stateRecord, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.Internal, "filestore: notification state file unreadable")
	}
	if len(data) == 0 {
		return nil, nil
	}
	var records []stateRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "filestore: notification state file malformed")
	}
	return records, nil
}

func (s *StateStore) writeAll(records []stateRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.Internal, "filestore: notification state encode failed")
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return errors.Wrap(err, errors.System, "filestore: notification state write failed")
	}
	return nil
}
