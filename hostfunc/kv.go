package hostfunc

import (
	"context"
	"errors"
	"sync"
)

// KVStore is an in-memory string store exposed to guest code under the
// "kv" namespace. State persists across executions within one backend.
type KVStore struct {
	data map[string]string
	mu   sync.RWMutex
}

func NewKVStore() *KVStore {
	return &KVStore{data: make(map[string]string)}
}

// RegisterInto adds kv.get, kv.set, kv.delete and kv.keys to r.
func (s *KVStore) RegisterInto(r *Registry) {
	r.Register("kv.get", s.Get)
	r.Register("kv.set", s.Set)
	r.Register("kv.delete", s.Delete)
	r.Register("kv.keys", s.Keys)
}

func (s *KVStore) Get(ctx context.Context, args []any) (any, error) {
	key, err := stringArg(args, 0, "key")
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	val, exists := s.data[key]
	s.mu.RUnlock()

	if !exists {
		return nil, nil
	}
	return val, nil
}

func (s *KVStore) Set(ctx context.Context, args []any) (any, error) {
	key, err := stringArg(args, 0, "key")
	if err != nil {
		return nil, err
	}
	val, err := stringArg(args, 1, "value")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.data[key] = val
	s.mu.Unlock()

	return "ok", nil
}

func (s *KVStore) Delete(ctx context.Context, args []any) (any, error) {
	key, err := stringArg(args, 0, "key")
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.data, key)
	s.mu.Unlock()

	return "ok", nil
}

func (s *KVStore) Keys(ctx context.Context, args []any) (any, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]any, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys, nil
}

func stringArg(args []any, i int, name string) (string, error) {
	if i >= len(args) {
		return "", errors.New(name + " required")
	}
	s, ok := args[i].(string)
	if !ok {
		return "", errors.New(name + " must be a string")
	}
	return s, nil
}
