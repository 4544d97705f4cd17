package sdk

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
	"github.com/fedlens/runwatch/run"
)

const CTJSON string = "application/json"

// RunIDHeader carries the out-of-band run identifier on the training
// response. Matched case-insensitively.
const RunIDHeader = "X-Run-Id"

type SDK interface {
	// StartTraining starts a federated-training run and returns the open
	// round stream. The caller owns the stream and must close it.
	//
	// example:
	//  ts, _ := sdk.StartTraining(ctx, run.TrainConfig{NumClients: 3, NumRounds: 2})
	//  defer ts.Close()
	StartTraining(ctx context.Context, cfg run.TrainConfig) (*TrainingStream, error)

	// RunReady reports whether the derived artifacts for a run are computed.
	//
	// example:
	//  ready, _ := sdk.RunReady(ctx, "run_20250101_120000")
	RunReady(ctx context.Context, runID string) (bool, error)

	// DeleteRun asks the backend to delete everything stored for a run.
	// The server-side deletion is idempotent.
	DeleteRun(ctx context.Context, runID string) error

	// Embeddings fetches the per-model patient embeddings for a run.
	Embeddings(ctx context.Context, runID string) (EmbeddingsResponse, error)

	// DivergenceHistory fetches the per-round client divergence metrics.
	DivergenceHistory(ctx context.Context, runID string) ([]RoundDivergence, error)

	// FeatureImportance fetches the top feature importances for one model
	// ("global" or a client model) of a run.
	FeatureImportance(ctx context.Context, runID, modelName string) (FeatureImportanceResponse, error)

	// Predict runs a single-shot prediction for one patient against the
	// current global model.
	Predict(ctx context.Context, patientID string) (Prediction, error)

	// Patients lists the patient ids known to the backend, the valid
	// inputs for Predict.
	Patients(ctx context.Context) ([]string, error)

	// TrainMetadata fetches the recorded configuration of a finished run.
	TrainMetadata(ctx context.Context, runID string) (TrainMetadata, error)
}

type rwSDK struct {
	baseURL string
	client  *http.Client
}

type Config struct {
	BaseURL         string
	TLSVerification bool
}

func NewSDK(cfg Config) SDK {
	return &rwSDK{
		baseURL: cfg.BaseURL,
		client: &http.Client{
			Transport: otelhttp.NewTransport(&http.Transport{
				TLSClientConfig: &tls.Config{
					InsecureSkipVerify: !cfg.TLSVerification,
				},
			}),
		},
	}
}

func (sdk *rwSDK) processRequest(ctx context.Context, method, reqURL string, data []byte, expectedRespCode int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, reqURL, bytes.NewReader(data))
	if err != nil {
		return []byte{}, err
	}

	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return []byte{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return []byte{}, err
	}

	if resp.StatusCode != expectedRespCode {
		if resp.StatusCode == http.StatusNotFound {
			return []byte{}, fmt.Errorf("%s: %w", reqURL, pkgerrors.ErrEndpointNotFound)
		}

		return []byte{}, fmt.Errorf("unexpected response code: %d", resp.StatusCode)
	}

	return body, nil
}

func (sdk *rwSDK) getJSON(ctx context.Context, reqURL string, out any) error {
	body, err := sdk.processRequest(ctx, http.MethodGet, reqURL, nil, http.StatusOK)
	if err != nil {
		return err
	}

	return json.Unmarshal(body, out)
}
