package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	pkgerrors "github.com/fedlens/runwatch/pkg/errors"
	"github.com/fedlens/runwatch/run"
)

const (
	trainEndpoint  = "/train"
	statusEndpoint = "/dissect/status"
	deleteEndpoint = "/delete-run"
)

// TrainingStream is the open response body of a started run. Body is nil
// when the server answered without one; callers treat that as a completed
// stream with zero records.
type TrainingStream struct {
	// HeaderRunID is the out-of-band run identifier from the response
	// metadata, empty if the server did not send one.
	HeaderRunID string

	Body io.ReadCloser
}

func (ts *TrainingStream) Close() error {
	if ts.Body == nil {
		return nil
	}

	return ts.Body.Close()
}

func (sdk *rwSDK) StartTraining(ctx context.Context, cfg run.TrainConfig) (*TrainingStream, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sdk.baseURL+trainEndpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Add("Content-Type", CTJSON)

	resp, err := sdk.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to start training: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		if resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("training endpoint: %w", pkgerrors.ErrEndpointNotFound)
		}

		return nil, fmt.Errorf("training endpoint returned error: %d", resp.StatusCode)
	}

	ts := &TrainingStream{
		HeaderRunID: resp.Header.Get(RunIDHeader),
		Body:        resp.Body,
	}
	if resp.ContentLength == 0 {
		resp.Body.Close()
		ts.Body = nil
	}

	return ts, nil
}

func (sdk *rwSDK) RunReady(ctx context.Context, runID string) (bool, error) {
	if runID == "" {
		return false, pkgerrors.ErrEmptyRunID
	}

	reqURL := fmt.Sprintf("%s%s?run_id=%s", sdk.baseURL, statusEndpoint, url.QueryEscape(runID))

	var status struct {
		Ready bool `json:"ready"`
	}
	if err := sdk.getJSON(ctx, reqURL, &status); err != nil {
		return false, err
	}

	return status.Ready, nil
}

func (sdk *rwSDK) DeleteRun(ctx context.Context, runID string) error {
	if runID == "" {
		return pkgerrors.ErrEmptyRunID
	}

	data, err := json.Marshal(map[string]string{"run_id": runID})
	if err != nil {
		return err
	}

	if _, err := sdk.processRequest(ctx, http.MethodPost, sdk.baseURL+deleteEndpoint, data, http.StatusOK); err != nil {
		return err
	}

	return nil
}
