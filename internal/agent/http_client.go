package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"

	"go.uber.org/zap"

	"liquidityArena/internal/model"
)

const rebalanceQueryPath = "/rebalance_query"

// HTTPClient queries agents over JSON HTTP. Each agent id maps to a
// base URL; token amounts travel as decimal strings because they can
// exceed 64 bits.
type HTTPClient struct {
	endpoints map[string]string
	client    *http.Client
	logger    *zap.Logger
}

// NewHTTPClient builds an HTTP agent client from an agent id -> base
// URL map. Timeouts come from the per-call context.
func NewHTTPClient(endpoints map[string]string, logger *zap.Logger) *HTTPClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPClient{
		endpoints: endpoints,
		client:    &http.Client{},
		logger:    logger,
	}
}

// AgentIDs returns the configured agent ids in no particular order.
func (c *HTTPClient) AgentIDs() []string {
	ids := make([]string, 0, len(c.endpoints))
	for id := range c.endpoints {
		ids = append(ids, id)
	}
	return ids
}

// Query posts the rebalance query to the agent's endpoint.
func (c *HTTPClient) Query(ctx context.Context, agentID string, req Request) (*Response, error) {
	baseURL, ok := c.endpoints[agentID]
	if !ok {
		return nil, fmt.Errorf("unknown agent: %s", agentID)
	}

	body, err := json.Marshal(toWireRequest(req))
	if err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+rebalanceQueryPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, httpResp.Body)
		return nil, fmt.Errorf("agent %s returned status %d", agentID, httpResp.StatusCode)
	}

	var wire wireResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", agentID, err)
	}

	return fromWireResponse(wire)
}

type wirePosition struct {
	TickLower   int    `json:"tick_lower"`
	TickUpper   int    `json:"tick_upper"`
	Allocation0 string `json:"allocation0"`
	Allocation1 string `json:"allocation1"`
}

type wireInventory struct {
	Amount0 string `json:"amount0"`
	Amount1 string `json:"amount1"`
}

type wireRequest struct {
	JobID              string         `json:"job_id"`
	PairAddress        string         `json:"pair_address"`
	RoundID            string         `json:"round_id"`
	RoundType          string         `json:"round_type"`
	BlockNumber        uint64         `json:"block_number"`
	CurrentPrice       string         `json:"current_price"`
	CurrentPositions   []wirePosition `json:"current_positions"`
	InventoryRemaining wireInventory  `json:"inventory_remaining"`
	RebalancesSoFar    int            `json:"rebalances_so_far"`
}

type wireResponse struct {
	Accepted         bool           `json:"accepted"`
	RefusalReason    string         `json:"refusal_reason,omitempty"`
	DesiredPositions []wirePosition `json:"desired_positions,omitempty"`
}

func toWireRequest(req Request) wireRequest {
	positions := make([]wirePosition, 0, len(req.CurrentPositions))
	for _, pos := range req.CurrentPositions {
		positions = append(positions, wirePosition{
			TickLower:   pos.TickLower,
			TickUpper:   pos.TickUpper,
			Allocation0: bigString(pos.Allocation0),
			Allocation1: bigString(pos.Allocation1),
		})
	}
	return wireRequest{
		JobID:            req.JobID,
		PairAddress:      req.PairAddress,
		RoundID:          req.RoundID,
		RoundType:        string(req.RoundType),
		BlockNumber:      req.BlockNumber,
		CurrentPrice:     bigString(req.CurrentPrice),
		CurrentPositions: positions,
		InventoryRemaining: wireInventory{
			Amount0: bigString(req.InventoryRemaining.Amount0),
			Amount1: bigString(req.InventoryRemaining.Amount1),
		},
		RebalancesSoFar: req.RebalancesSoFar,
	}
}

func fromWireResponse(wire wireResponse) (*Response, error) {
	resp := &Response{
		Accepted:      wire.Accepted,
		RefusalReason: wire.RefusalReason,
	}
	if wire.DesiredPositions == nil {
		return resp, nil
	}

	positions := make([]model.Position, 0, len(wire.DesiredPositions))
	for i, pos := range wire.DesiredPositions {
		allocation0, err := parseAmount(pos.Allocation0)
		if err != nil {
			return nil, &model.ValidationError{
				Field:  fmt.Sprintf("desired_positions[%d].allocation0", i),
				Reason: err.Error(),
			}
		}
		allocation1, err := parseAmount(pos.Allocation1)
		if err != nil {
			return nil, &model.ValidationError{
				Field:  fmt.Sprintf("desired_positions[%d].allocation1", i),
				Reason: err.Error(),
			}
		}
		positions = append(positions, model.Position{
			TickLower:   pos.TickLower,
			TickUpper:   pos.TickUpper,
			Allocation0: allocation0,
			Allocation1: allocation1,
		})
	}
	resp.DesiredPositions = positions
	return resp, nil
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}

func parseAmount(value string) (*big.Int, error) {
	if value == "" {
		return new(big.Int), nil
	}
	parsed, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", value)
	}
	return parsed, nil
}
