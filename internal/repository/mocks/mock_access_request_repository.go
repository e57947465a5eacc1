package mocks

import (
	"context"

	"docvault/internal/model"

	"github.com/stretchr/testify/mock"
)

type MockAccessRequestRepository struct {
	mock.Mock
}

func (m *MockAccessRequestRepository) Create(ctx context.Context, req *model.AccessRequest) (*model.AccessRequest, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessRequest), args.Error(1)
}

func (m *MockAccessRequestRepository) FindByID(ctx context.Context, id string) (*model.AccessRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessRequest), args.Error(1)
}

func (m *MockAccessRequestRepository) FindByUserItem(ctx context.Context, userID, itemID string) (*model.AccessRequest, error) {
	args := m.Called(ctx, userID, itemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.AccessRequest), args.Error(1)
}

func (m *MockAccessRequestRepository) HasApproved(ctx context.Context, userID, itemID string) (bool, error) {
	args := m.Called(ctx, userID, itemID)
	return args.Bool(0), args.Error(1)
}

func (m *MockAccessRequestRepository) List(ctx context.Context) ([]model.AccessRequest, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.AccessRequest), args.Error(1)
}

func (m *MockAccessRequestRepository) UpdateStatus(ctx context.Context, id string, status model.RequestStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAccessRequestRepository) Upsert(ctx context.Context, userID, itemID string, itemType model.ItemType, status model.RequestStatus) error {
	args := m.Called(ctx, userID, itemID, itemType, status)
	return args.Error(0)
}
