package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/fedlens/runwatch/pkg/sdk"
	"github.com/fedlens/runwatch/run"
)

// MockSDK is a mock implementation of the sdk.SDK interface
type MockSDK struct {
	mock.Mock
}

// StartTraining starts a training run and returns its round stream
func (m *MockSDK) StartTraining(ctx context.Context, cfg run.TrainConfig) (*sdk.TrainingStream, error) {
	args := m.Called(ctx, cfg)
	ts, _ := args.Get(0).(*sdk.TrainingStream)
	return ts, args.Error(1)
}

// RunReady reports artifact readiness for a run
func (m *MockSDK) RunReady(ctx context.Context, runID string) (bool, error) {
	args := m.Called(ctx, runID)
	return args.Bool(0), args.Error(1)
}

// DeleteRun deletes a run server-side
func (m *MockSDK) DeleteRun(ctx context.Context, runID string) error {
	args := m.Called(ctx, runID)
	return args.Error(0)
}

// Embeddings fetches patient embeddings for a run
func (m *MockSDK) Embeddings(ctx context.Context, runID string) (sdk.EmbeddingsResponse, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(sdk.EmbeddingsResponse), args.Error(1)
}

// DivergenceHistory fetches per-round divergence metrics for a run
func (m *MockSDK) DivergenceHistory(ctx context.Context, runID string) ([]sdk.RoundDivergence, error) {
	args := m.Called(ctx, runID)
	history, _ := args.Get(0).([]sdk.RoundDivergence)
	return history, args.Error(1)
}

// FeatureImportance fetches feature importances for one model of a run
func (m *MockSDK) FeatureImportance(ctx context.Context, runID, modelName string) (sdk.FeatureImportanceResponse, error) {
	args := m.Called(ctx, runID, modelName)
	return args.Get(0).(sdk.FeatureImportanceResponse), args.Error(1)
}

// Predict runs a single-shot prediction for one patient
func (m *MockSDK) Predict(ctx context.Context, patientID string) (sdk.Prediction, error) {
	args := m.Called(ctx, patientID)
	return args.Get(0).(sdk.Prediction), args.Error(1)
}

// Patients lists the patient ids known to the backend
func (m *MockSDK) Patients(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

// TrainMetadata fetches the recorded configuration of a run
func (m *MockSDK) TrainMetadata(ctx context.Context, runID string) (sdk.TrainMetadata, error) {
	args := m.Called(ctx, runID)
	return args.Get(0).(sdk.TrainMetadata), args.Error(1)
}
