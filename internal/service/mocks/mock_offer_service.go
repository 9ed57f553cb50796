package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"offerapi/internal/model"
	"offerapi/internal/service"
)

type MockOfferService struct {
	mock.Mock
}

func (m *MockOfferService) Create(ctx context.Context, userID string, in service.OfferInput) (*service.EnrichedOffer, error) {
	args := m.Called(ctx, userID, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EnrichedOffer), args.Error(1)
}

func (m *MockOfferService) List(ctx context.Context, userID string, opts service.ListOptions) (*service.ListResult, error) {
	args := m.Called(ctx, userID, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.ListResult), args.Error(1)
}

func (m *MockOfferService) Get(ctx context.Context, id, userID string) (*service.EnrichedOffer, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EnrichedOffer), args.Error(1)
}

func (m *MockOfferService) Update(ctx context.Context, id, userID string, in service.UpdateInput, ifMatch string) (*service.EnrichedOffer, error) {
	args := m.Called(ctx, id, userID, in, ifMatch)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EnrichedOffer), args.Error(1)
}

func (m *MockOfferService) Delete(ctx context.Context, id, userID string) error {
	args := m.Called(ctx, id, userID)
	return args.Error(0)
}

func (m *MockOfferService) CreateVersion(ctx context.Context, id, userID, description string) (*service.VersionSummary, error) {
	args := m.Called(ctx, id, userID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.VersionSummary), args.Error(1)
}

func (m *MockOfferService) GetVersions(ctx context.Context, id, userID string) ([]service.VersionEntry, error) {
	args := m.Called(ctx, id, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]service.VersionEntry), args.Error(1)
}

func (m *MockOfferService) GetVersion(ctx context.Context, id string, versionNumber int, userID string) (*model.Version, error) {
	args := m.Called(ctx, id, versionNumber, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Version), args.Error(1)
}

func (m *MockOfferService) RestoreVersion(ctx context.Context, id string, versionNumber int, userID string, createBackup bool) (*service.RestoreResult, error) {
	args := m.Called(ctx, id, versionNumber, userID, createBackup)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.RestoreResult), args.Error(1)
}

func (m *MockOfferService) SwitchToVersion(ctx context.Context, id string, versionNumber int, userID string) (*service.EnrichedOffer, error) {
	args := m.Called(ctx, id, versionNumber, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EnrichedOffer), args.Error(1)
}

func (m *MockOfferService) PublishVersion(ctx context.Context, id string, versionNumber int, userID string) (*service.EnrichedOffer, error) {
	args := m.Called(ctx, id, versionNumber, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EnrichedOffer), args.Error(1)
}

func (m *MockOfferService) UnpublishVersion(ctx context.Context, id string, versionNumber int, userID string) (*service.EnrichedOffer, error) {
	args := m.Called(ctx, id, versionNumber, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.EnrichedOffer), args.Error(1)
}
