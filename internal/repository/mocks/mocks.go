package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// KVStore is a mock for repository.KVStore.
type KVStore struct {
	mock.Mock
}

func (m *KVStore) Get(ctx context.Context, key string) ([]byte, error) {
	args := m.Called(ctx, key)
	if data, ok := args.Get(0).([]byte); ok {
		return data, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *KVStore) Set(ctx context.Context, key string, value []byte) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func (m *KVStore) Remove(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

func (m *KVStore) Close() error {
	args := m.Called()
	return args.Error(0)
}
