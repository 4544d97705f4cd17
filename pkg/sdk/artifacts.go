package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
)

const (
	embeddingsEndpoint = "/dissect/embeddings"
	divergenceEndpoint = "/dissect/divergence-history"
	importanceEndpoint = "/dissect/feature-importance"
	predictEndpoint    = "/predict"
	patientsEndpoint   = "/patients"
	metadataEndpoint   = "/train-metadata"
)

type EmbeddingPoint struct {
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
	PatientID string  `json:"patient_id"`
	Label     string  `json:"label"`
}

// EmbeddingsResponse maps model name ("global" or a client model) to the
// projected patient embeddings of that model.
type EmbeddingsResponse struct {
	Embeddings map[string][]EmbeddingPoint `json:"embeddings"`
}

type RoundDivergence struct {
	Round            int                           `json:"round"`
	GlobalLoss       float64                       `json:"global_loss"`
	ClientDivergence map[string]map[string]float64 `json:"client_divergence"`
}

type FeatureImportanceEntry struct {
	FeatureName string  `json:"feature_name"`
	Importance  float64 `json:"importance"`
}

type FeatureOverlap struct {
	OverlapPercentage float64  `json:"overlap_percentage"`
	CommonFeatures    []string `json:"common_features"`
}

type FeatureImportanceResponse struct {
	ModelName          string                   `json:"model_name"`
	FeatureImportances []FeatureImportanceEntry `json:"feature_importances"`
	OverlapWithGlobal  *FeatureOverlap          `json:"overlap_with_global,omitempty"`
}

type Prediction struct {
	PatientID  string  `json:"patient_id"`
	Prediction string  `json:"prediction"`
	Confidence float64 `json:"confidence"`
}

type TrainMetadata struct {
	NumClients       int    `json:"num_clients"`
	NumRounds        int    `json:"num_rounds"`
	LastTrainingTime string `json:"last_training_time"`
}

func (sdk *rwSDK) Embeddings(ctx context.Context, runID string) (EmbeddingsResponse, error) {
	if runID == "" {
		return EmbeddingsResponse{}, pkgerrors.ErrEmptyRunID
	}

	reqURL := fmt.Sprintf("%s%s?run_id=%s", sdk.baseURL, embeddingsEndpoint, url.QueryEscape(runID))

	var resp EmbeddingsResponse
	if err := sdk.getJSON(ctx, reqURL, &resp); err != nil {
		return EmbeddingsResponse{}, err
	}

	return resp, nil
}

func (sdk *rwSDK) DivergenceHistory(ctx context.Context, runID string) ([]RoundDivergence, error) {
	if runID == "" {
		return nil, pkgerrors.ErrEmptyRunID
	}

	reqURL := fmt.Sprintf("%s%s?run_id=%s", sdk.baseURL, divergenceEndpoint, url.QueryEscape(runID))

	var history []RoundDivergence
	if err := sdk.getJSON(ctx, reqURL, &history); err != nil {
		return nil, err
	}

	return history, nil
}

func (sdk *rwSDK) FeatureImportance(ctx context.Context, runID, modelName string) (FeatureImportanceResponse, error) {
	if runID == "" {
		return FeatureImportanceResponse{}, pkgerrors.ErrEmptyRunID
	}
	if modelName == "" {
		modelName = "global"
	}

	reqURL := fmt.Sprintf("%s%s?run_id=%s&model_name=%s",
		sdk.baseURL, importanceEndpoint, url.QueryEscape(runID), url.QueryEscape(modelName))

	var resp FeatureImportanceResponse
	if err := sdk.getJSON(ctx, reqURL, &resp); err != nil {
		return FeatureImportanceResponse{}, err
	}

	return resp, nil
}

func (sdk *rwSDK) Predict(ctx context.Context, patientID string) (Prediction, error) {
	data, err := json.Marshal(map[string]string{"patient_id": patientID})
	if err != nil {
		return Prediction{}, err
	}

	body, err := sdk.processRequest(ctx, http.MethodPost, sdk.baseURL+predictEndpoint, data, http.StatusOK)
	if err != nil {
		return Prediction{}, err
	}

	var p Prediction
	if err := json.Unmarshal(body, &p); err != nil {
		return Prediction{}, err
	}

	return p, nil
}

func (sdk *rwSDK) Patients(ctx context.Context) ([]string, error) {
	var resp struct {
		PatientIDs []string `json:"patient_ids"`
	}
	if err := sdk.getJSON(ctx, sdk.baseURL+patientsEndpoint, &resp); err != nil {
		return nil, err
	}

	return resp.PatientIDs, nil
}

func (sdk *rwSDK) TrainMetadata(ctx context.Context, runID string) (TrainMetadata, error) {
	reqURL := sdk.baseURL + metadataEndpoint
	if runID != "" {
		reqURL += "?run_id=" + url.QueryEscape(runID)
	}

	var md TrainMetadata
	if err := sdk.getJSON(ctx, reqURL, &md); err != nil {
		return TrainMetadata{}, err
	}

	return md, nil
}
