package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/awsshrinath/autotrade/internal/domain"
)

// BridgeGateway places real exit orders through the broker bridge service's
// REST API. Exits are market orders with the transaction type opposite to the
// position's entry direction.
type BridgeGateway struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewBridgeGateway creates a bridge REST client.
//
// baseURL is the bridge root, e.g. "http://broker-bridge:8080".
func NewBridgeGateway(baseURL, apiKey string) *BridgeGateway {
	return &BridgeGateway{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

type exitOrderRequest struct {
	Symbol          string `json:"symbol"`
	TransactionType string `json:"transaction_type"`
	Quantity        int    `json:"quantity"`
	OrderType       string `json:"order_type"`
	Product         string `json:"product"`
	Tag             string `json:"tag,omitempty"`
}

type exitOrderResponse struct {
	OrderID      string  `json:"order_id"`
	Status       string  `json:"status"`
	AveragePrice float64 `json:"average_price"`
	Message      string  `json:"message,omitempty"`
}

// Exit places a market order closing quantity of the position.
func (g *BridgeGateway) Exit(ctx context.Context, pos domain.Position, quantity int, reason domain.ExitReason) (domain.ExitResult, error) {
	if quantity <= 0 || quantity > pos.Quantity {
		return domain.ExitResult{}, fmt.Errorf("bridge: exit %s: quantity %d out of range (remaining %d)",
			pos.ID, quantity, pos.Quantity)
	}

	side := "SELL"
	if pos.Direction == domain.DirectionShort {
		side = "BUY"
	}
	reqBody := exitOrderRequest{
		Symbol:          pos.Symbol,
		TransactionType: side,
		Quantity:        quantity,
		OrderType:       "MARKET",
		Product:         "MIS",
		Tag:             string(reason),
	}

	var resp exitOrderResponse
	if err := g.post(ctx, "/api/orders", reqBody, &resp); err != nil {
		return domain.ExitResult{}, fmt.Errorf("bridge: exit %s: %w", pos.ID, err)
	}
	if resp.Status == "REJECTED" {
		return domain.ExitResult{}, fmt.Errorf("bridge: exit %s rejected: %s: %w",
			pos.ID, resp.Message, domain.ErrExecutionFailed)
	}

	fillPrice := resp.AveragePrice
	if fillPrice <= 0 {
		fillPrice = pos.CurrentPrice
	}
	return domain.ExitResult{OrderID: resp.OrderID, FillPrice: fillPrice}, nil
}

func (g *BridgeGateway) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	httpResp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if httpResp.StatusCode < 200 || httpResp.StatusCode >= 300 {
		return fmt.Errorf("status %d: %s", httpResp.StatusCode, string(respBody))
	}
	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

var _ domain.OrderGateway = (*BridgeGateway)(nil)
