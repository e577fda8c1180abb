package platform

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/jyron/tradershub/internal/config"
	"go.uber.org/zap"
)

// ClientInterface is the trading-platform HTTP API surface this tool
// consumes. The platform itself is a black box; only its request/response
// contracts matter here.
type ClientInterface interface {
	RegisterBot(ctx context.Context, req RegisterRequest) (*RegisterResponse, error)
	ClaimBot(ctx context.Context, botID uint) error
	ExecuteStockTrade(ctx context.Context, apiKey string, req StockTradeRequest) (*TradeResponse, error)
	GetPortfolio(ctx context.Context, apiKey string) (*Portfolio, error)
}

// RegisterRequest registers a new bot.
type RegisterRequest struct {
	Name         string `json:"name"`
	Description  string `json:"description"`
	CreatorEmail string `json:"creator_email"`
	IsTest       bool   `json:"is_test"`
}

// RegisterResponse carries the new bot's id and API key.
type RegisterResponse struct {
	BotID           uint    `json:"bot_id"`
	APIKey          string  `json:"api_key"`
	StartingBalance float64 `json:"starting_balance"`
}

// StockTradeRequest executes one stock trade on the platform.
type StockTradeRequest struct {
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Quantity  int    `json:"quantity"`
	Reasoning string `json:"reasoning"`
}

// TradeResponse is the platform's record of an executed trade.
type TradeResponse struct {
	TradeID    uint      `json:"trade_id"`
	Status     string    `json:"status"`
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	Quantity   int       `json:"quantity"`
	Price      float64   `json:"price"`
	Total      float64   `json:"total"`
	ExecutedAt time.Time `json:"executed_at"`
}

// Portfolio is the platform's live valuation of one bot.
type Portfolio struct {
	BotID       uint    `json:"bot_id"`
	BotName     string  `json:"bot_name"`
	CashBalance float64 `json:"cash_balance"`
	TotalValue  float64 `json:"total_value"`
	TotalPnL    float64 `json:"total_pnl"`
	TotalPnLPct float64 `json:"total_pnl_percent"`
}

// Client is a REST client for the trading platform API.
// It implements ClientInterface.
type Client struct {
	client *resty.Client
	logger *zap.Logger
}

var _ ClientInterface = (*Client)(nil)

// NewClient creates a new trading platform API client. Every request carries
// a unique X-Request-ID so platform-side logs can be correlated with ours.
func NewClient(cfg config.Platform, logger *zap.Logger) *Client {
	client := resty.New().SetBaseURL(cfg.BaseURL)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		req.SetHeader("X-Request-ID", uuid.NewString())
		return nil
	})
	return &Client{
		client: client,
		logger: logger,
	}
}

// RegisterBot registers a bot and returns its id and API key.
func (c *Client) RegisterBot(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	var result RegisterResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&result).
		Post("/bots/register")
	if err != nil {
		return nil, fmt.Errorf("failed to register bot %s: %w", req.Name, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to register bot %s: status %s: %s", req.Name, resp.Status(), resp.String())
	}

	c.logger.Info("Registered bot", zap.String("name", req.Name), zap.Uint("bot_id", result.BotID))
	return &result, nil
}

// ClaimBot activates a registered bot. The platform treats claiming as
// idempotent, so re-claiming an active bot is not an error here.
func (c *Client) ClaimBot(ctx context.Context, botID uint) error {
	resp, err := c.client.R().
		SetContext(ctx).
		Post(fmt.Sprintf("/claim/%d", botID))
	if err != nil {
		return fmt.Errorf("failed to claim bot %d: %w", botID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("failed to claim bot %d: status %s", botID, resp.Status())
	}
	return nil
}

// ExecuteStockTrade executes one trade as the bot identified by apiKey.
func (c *Client) ExecuteStockTrade(ctx context.Context, apiKey string, req StockTradeRequest) (*TradeResponse, error) {
	var result TradeResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-Key", apiKey).
		SetBody(req).
		SetResult(&result).
		Post("/trade/stock")
	if err != nil {
		return nil, fmt.Errorf("failed to execute %s %d %s: %w", req.Side, req.Quantity, req.Symbol, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to execute %s %d %s: status %s: %s", req.Side, req.Quantity, req.Symbol, resp.Status(), resp.String())
	}
	return &result, nil
}

// GetPortfolio reads the platform's current valuation for a bot.
func (c *Client) GetPortfolio(ctx context.Context, apiKey string) (*Portfolio, error) {
	var result Portfolio
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("X-API-Key", apiKey).
		SetResult(&result).
		Get("/portfolio")
	if err != nil {
		return nil, fmt.Errorf("failed to get portfolio: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("failed to get portfolio: status %s", resp.Status())
	}
	return &result, nil
}
