package handlers

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/ukydev/cocagne-tracker/internal/db"
	"github.com/ukydev/cocagne-tracker/internal/models"
)

// MockTourCollection is a mock implementation of TourCollection
type MockTourCollection struct {
	mock.Mock
}

func (m *MockTourCollection) FindTours(ctx context.Context, filter db.TourFilter) ([]models.Tour, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Tour), args.Error(1)
}

func (m *MockTourCollection) FindTourByID(ctx context.Context, id string) (*models.Tour, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tour), args.Error(1)
}

func (m *MockTourCollection) FindTourByCity(ctx context.Context, city string) (*models.Tour, error) {
	args := m.Called(ctx, city)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tour), args.Error(1)
}

func (m *MockTourCollection) MarkDelivered(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockTourCollection) ValidateDepot(ctx context.Context, tourID, depotID string) (*models.Tour, error) {
	args := m.Called(ctx, tourID, depotID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Tour), args.Error(1)
}

func (m *MockTourCollection) InsertTours(ctx context.Context, tours []models.Tour) (int, error) {
	args := m.Called(ctx, tours)
	return args.Int(0), args.Error(1)
}

// MockNotificationCollection is a mock implementation of NotificationCollection
type MockNotificationCollection struct {
	mock.Mock
}

func (m *MockNotificationCollection) InsertNotification(ctx context.Context, n models.Notification) (models.Notification, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(models.Notification), args.Error(1)
}

func (m *MockNotificationCollection) FindNotifications(ctx context.Context, limit int64) ([]models.Notification, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Notification), args.Error(1)
}

func (m *MockNotificationCollection) DeleteNotification(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockNotificationCollection) DeleteAllNotifications(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// MockPushTokenCollection is a mock implementation of PushTokenCollection
type MockPushTokenCollection struct {
	mock.Mock
}

func (m *MockPushTokenCollection) UpsertPushToken(ctx context.Context, token models.PushToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *MockPushTokenCollection) FindPushTokens(ctx context.Context) ([]models.PushToken, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.PushToken), args.Error(1)
}

func (m *MockPushTokenCollection) DeletePushToken(ctx context.Context, token string) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

// MockProofCollection is a mock implementation of ProofCollection
type MockProofCollection struct {
	mock.Mock
}

func (m *MockProofCollection) InsertProof(ctx context.Context, proof models.DeliveryProof) (models.DeliveryProof, error) {
	args := m.Called(ctx, proof)
	return args.Get(0).(models.DeliveryProof), args.Error(1)
}

func (m *MockProofCollection) FindProofsByTour(ctx context.Context, tourID string) ([]models.DeliveryProof, error) {
	args := m.Called(ctx, tourID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.DeliveryProof), args.Error(1)
}
