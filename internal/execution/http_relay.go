package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"liquidityArena/internal/model"
)

const (
	executePath    = "/execute_strategy"
	defaultTimeout = 30 * time.Second
)

// HTTPRelay sends strategies to the executor bot over JSON HTTP.
type HTTPRelay struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPRelay builds an execution relay for the given executor URL.
func NewHTTPRelay(baseURL, apiKey string, logger *zap.Logger) (*HTTPRelay, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("executor url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPRelay{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}, nil
}

type wirePosition struct {
	TickLower   int    `json:"tick_lower"`
	TickUpper   int    `json:"tick_upper"`
	Allocation0 string `json:"allocation0"`
	Allocation1 string `json:"allocation1"`
}

type executeRequest struct {
	APIKey    string         `json:"api_key,omitempty"`
	JobID     string         `json:"job_id"`
	RoundID   string         `json:"round_id"`
	AgentID   string         `json:"agent_id"`
	Positions []wirePosition `json:"positions"`
}

type executeResponse struct {
	Success bool   `json:"success"`
	TxHash  string `json:"tx_hash,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Submit posts the positions to the executor bot.
func (r *HTTPRelay) Submit(ctx context.Context, jobID, roundID, agentID string, positions []model.Position) (Result, error) {
	wire := make([]wirePosition, 0, len(positions))
	for _, pos := range positions {
		wire = append(wire, wirePosition{
			TickLower:   pos.TickLower,
			TickUpper:   pos.TickUpper,
			Allocation0: pos.Allocation0.String(),
			Allocation1: pos.Allocation1.String(),
		})
	}

	body, err := json.Marshal(executeRequest{
		APIKey:    r.apiKey,
		JobID:     jobID,
		RoundID:   roundID,
		AgentID:   agentID,
		Positions: wire,
	})
	if err != nil {
		return Result{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+executePath, bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := r.client.Do(httpReq)
	if err != nil {
		return Result{}, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, httpResp.Body)
		r.logger.Warn("executor rejected submission",
			zap.String("round_id", roundID),
			zap.Int("status", httpResp.StatusCode))
		return Result{Success: false, Error: fmt.Sprintf("executor returned status %d", httpResp.StatusCode)}, nil
	}

	var wireResp executeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wireResp); err != nil {
		return Result{}, fmt.Errorf("decode executor response: %w", err)
	}

	return Result{Success: wireResp.Success, TxHash: wireResp.TxHash, Error: wireResp.Error}, nil
}
