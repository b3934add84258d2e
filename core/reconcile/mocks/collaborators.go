package mocks

import (
	"context"

	"directory-sync/core/reconcile"

	"github.com/stretchr/testify/mock"
)

// Directory is a mock implementation of reconcile.Directory
type Directory struct {
	mock.Mock
}

func (m *Directory) HealthCheck(ctx context.Context) (reconcile.Health, error) {
	args := m.Called(ctx)
	return args.Get(0).(reconcile.Health), args.Error(1)
}

func (m *Directory) LoadAll(ctx context.Context, mode reconcile.LoadMode) ([]reconcile.Record, error) {
	args := m.Called(ctx, mode)
	if records, ok := args.Get(0).([]reconcile.Record); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Directory) Disconnect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Mirror is a mock implementation of reconcile.Mirror
type Mirror struct {
	mock.Mock
}

func (m *Mirror) LoadAll(ctx context.Context) ([]reconcile.Record, error) {
	args := m.Called(ctx)
	if records, ok := args.Get(0).([]reconcile.Record); ok {
		return records, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *Mirror) Create(ctx context.Context, record reconcile.Record) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *Mirror) Update(ctx context.Context, key string, fields reconcile.Record) error {
	args := m.Called(ctx, key, fields)
	return args.Error(0)
}

// Store is a mock implementation of reconcile.Store
type Store struct {
	mock.Mock
}

func (m *Store) Get(ctx context.Context, key string) (string, bool, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *Store) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}
