package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"offerapi/internal/model"
	"offerapi/internal/repository"
)

type MockOfferRepository struct {
	mock.Mock
}

func (m *MockOfferRepository) Create(ctx context.Context, offer *model.Offer, initial *model.Version) (*model.Offer, error) {
	args := m.Called(ctx, offer, initial)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Offer), args.Error(1)
}

func (m *MockOfferRepository) FindByID(ctx context.Context, id string) (*model.Offer, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Offer), args.Error(1)
}

func (m *MockOfferRepository) ListByOwner(ctx context.Context, ownerID string, q repository.ListQuery) (*repository.PageResult[model.Offer], error) {
	args := m.Called(ctx, ownerID, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.PageResult[model.Offer]), args.Error(1)
}

func (m *MockOfferRepository) Update(ctx context.Context, p repository.UpdateParams) (*model.Offer, error) {
	args := m.Called(ctx, p)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Offer), args.Error(1)
}

func (m *MockOfferRepository) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	args := m.Called(ctx, id, ownerID)
	return args.Bool(0), args.Error(1)
}

func (m *MockOfferRepository) MarkPublished(ctx context.Context, id string, version int, publicURL string, at time.Time) error {
	args := m.Called(ctx, id, version, publicURL, at)
	return args.Error(0)
}

func (m *MockOfferRepository) ClearPublished(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

type MockVersionRepository struct {
	mock.Mock
}

func (m *MockVersionRepository) Append(ctx context.Context, v *model.Version) (*model.Version, error) {
	args := m.Called(ctx, v)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Version), args.Error(1)
}

func (m *MockVersionRepository) Get(ctx context.Context, offerID string, version int) (*model.Version, error) {
	args := m.Called(ctx, offerID, version)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Version), args.Error(1)
}

func (m *MockVersionRepository) List(ctx context.Context, offerID string) ([]model.Version, error) {
	args := m.Called(ctx, offerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Version), args.Error(1)
}

func (m *MockVersionRepository) SetPublished(ctx context.Context, offerID string, version int, published bool) (bool, error) {
	args := m.Called(ctx, offerID, version, published)
	return args.Bool(0), args.Error(1)
}

func (m *MockVersionRepository) DeleteAll(ctx context.Context, offerID string) error {
	args := m.Called(ctx, offerID)
	return args.Error(0)
}
