package backfill

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jyron/tradershub/internal/config"
	"github.com/jyron/tradershub/internal/models"
	"github.com/jyron/tradershub/internal/platform"
	"github.com/jyron/tradershub/internal/pricing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MockPlatformClient is a mock implementation of platform.ClientInterface.
type MockPlatformClient struct {
	mock.Mock
}

func (m *MockPlatformClient) RegisterBot(ctx context.Context, req platform.RegisterRequest) (*platform.RegisterResponse, error) {
	args := m.Called(req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platform.RegisterResponse), args.Error(1)
}

func (m *MockPlatformClient) ClaimBot(ctx context.Context, botID uint) error {
	return m.Called(botID).Error(0)
}

func (m *MockPlatformClient) ExecuteStockTrade(ctx context.Context, apiKey string, req platform.StockTradeRequest) (*platform.TradeResponse, error) {
	args := m.Called(apiKey, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platform.TradeResponse), args.Error(1)
}

func (m *MockPlatformClient) GetPortfolio(ctx context.Context, apiKey string) (*platform.Portfolio, error) {
	args := m.Called(apiKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*platform.Portfolio), args.Error(1)
}

// waveSource serves synthetic daily closes that oscillate on a 20-day cycle,
// so every symbol always has troughs and crests for the scheduler to find.
type waveSource struct {
	bases map[string]float64
}

func (s *waveSource) DailyCloses(ctx context.Context, symbols []string, day time.Time) (map[string]float64, error) {
	phase := day.YearDay() % 20
	offset := float64(phase)
	if phase >= 10 {
		offset = float64(20 - phase)
	}
	closes := make(map[string]float64, len(symbols))
	for _, symbol := range symbols {
		if base, ok := s.bases[symbol]; ok {
			closes[symbol] = base + offset
		}
	}
	return closes, nil
}

func testSeedConfig() config.Backfill {
	return config.Backfill{
		Symbols: []string{"AAPL", "MSFT"},
		Bots: []config.BotSpec{
			{Name: "MomentumMaster", Description: "Buys dips", Email: "bots@example.com", Persona: "winner"},
			{Name: "DipBuyer", Description: "Chases tops", Email: "bots@example.com", Persona: "loser"},
		},
		DaysBack:      90,
		TradingDays:   40,
		TradeTarget:   20,
		ExtremaWindow: 5,
		MaxExtrema:    10,
		MaxSymbols:    15,
		MinHistory:    10,
		MinGapDays:    2,
		Seed:          42,
	}
}

func newTestRunner(t *testing.T, db *gorm.DB, platformClient platform.ClientInterface, cfg config.Backfill) *Runner {
	t.Helper()
	source := &waveSource{bases: map[string]float64{"AAPL": 100, "MSFT": 300}}
	cache := pricing.NewCache(source, 3, zap.NewNop())
	return NewRunner(db, cache, platformClient, cfg, zap.NewNop())
}

func expectRegistration(platformClient *MockPlatformClient, name string, botID uint) {
	platformClient.On("RegisterBot", mock.MatchedBy(func(req platform.RegisterRequest) bool {
		return req.Name == name && req.IsTest
	})).Return(&platform.RegisterResponse{
		BotID:           botID,
		APIKey:          "key-" + name,
		StartingBalance: models.StartingCash,
	}, nil).Once()
	platformClient.On("ClaimBot", botID).Return(nil).Once()
}

func TestRun_SeedsConfiguredBots(t *testing.T) {
	db := setupTestDB(t)
	platformClient := new(MockPlatformClient)
	expectRegistration(platformClient, "MomentumMaster", 1)
	expectRegistration(platformClient, "DipBuyer", 2)

	runner := newTestRunner(t, db, platformClient, testSeedConfig())
	summary, err := runner.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, summary.BotsSeeded)
	assert.Greater(t, summary.TradesInserted, 0)
	assert.Greater(t, summary.PricesCached, 0)

	var bots []models.Bot
	assert.NoError(t, db.Order("id ASC").Find(&bots).Error)
	assert.Len(t, bots, 2)
	for _, bot := range bots {
		assert.True(t, bot.IsTest)
		assert.True(t, bot.IsActive)
	}

	// Every recorded trade carries the fixed execution hour.
	var trades []models.Trade
	assert.NoError(t, db.Find(&trades).Error)
	assert.Len(t, trades, summary.TradesInserted)
	for _, trade := range trades {
		assert.Equal(t, tradeHour, trade.ExecutedAt.Hour())
		assert.Greater(t, trade.TotalValue, 0.0)
	}

	platformClient.AssertExpectations(t)
}

func TestRun_RemovesPreviousTestBots(t *testing.T) {
	db := setupTestDB(t)

	stale := models.Bot{Name: "OldTestBot", CashBalance: models.StartingCash, IsTest: true}
	assert.NoError(t, db.Create(&stale).Error)
	assert.NoError(t, db.Create(&models.Trade{
		BotID: stale.ID, Symbol: "AAPL", Side: models.SideBuy,
		Quantity: 1, Price: 100, TotalValue: 100,
		ExecutedAt: time.Date(2024, 1, 2, 16, 0, 0, 0, time.UTC),
	}).Error)

	keeper := models.Bot{Name: "RealBot", CashBalance: models.StartingCash, IsTest: false}
	assert.NoError(t, db.Create(&keeper).Error)

	platformClient := new(MockPlatformClient)
	cfg := testSeedConfig()
	cfg.Bots = nil // cleanup only

	runner := newTestRunner(t, db, platformClient, cfg)
	_, err := runner.Run(context.Background())
	assert.NoError(t, err)

	var count int64
	db.Model(&models.Bot{}).Where("id = ?", stale.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Trade{}).Where("bot_id = ?", stale.ID).Count(&count)
	assert.Zero(t, count)
	db.Model(&models.Bot{}).Where("id = ?", keeper.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestRun_UnknownPersonaIsFatal(t *testing.T) {
	db := setupTestDB(t)
	platformClient := new(MockPlatformClient)

	cfg := testSeedConfig()
	cfg.Bots = []config.BotSpec{{Name: "Confused", Persona: "sideways"}}

	runner := newTestRunner(t, db, platformClient, cfg)
	_, err := runner.Run(context.Background())

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "Confused")
}

func TestRun_RegistrationFailureSkipsBot(t *testing.T) {
	db := setupTestDB(t)
	platformClient := new(MockPlatformClient)
	platformClient.On("RegisterBot", mock.MatchedBy(func(req platform.RegisterRequest) bool {
		return req.Name == "MomentumMaster"
	})).Return(nil, errors.New("platform down")).Once()
	expectRegistration(platformClient, "DipBuyer", 2)

	runner := newTestRunner(t, db, platformClient, testSeedConfig())
	summary, err := runner.Run(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 1, summary.BotsSeeded)

	var count int64
	db.Model(&models.Bot{}).Count(&count)
	assert.EqualValues(t, 1, count)
	platformClient.AssertExpectations(t)
}

func TestPastTradingDays(t *testing.T) {
	// A Friday; the ten most recent weekdays end on it.
	now := time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)

	days := pastTradingDays(now, 365, 10)

	assert.Len(t, days, 10)
	for i, day := range days {
		assert.NotEqual(t, time.Saturday, day.Weekday())
		assert.NotEqual(t, time.Sunday, day.Weekday())
		if i > 0 {
			assert.True(t, day.After(days[i-1]), "days must be ascending")
		}
	}
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), days[len(days)-1])
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), days[0])
}
