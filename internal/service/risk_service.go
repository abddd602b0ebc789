package service

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/alanyoungcy/lobsim/internal/domain"
)

const (
	ReasonHold          = "No trade (hold)"
	ReasonUnknownAction = "Unknown action"
	ReasonLimitReached  = "Risk limit reached"
	ReasonWithinLimits  = "Within risk limits"
)

// RiskConfig holds the tunable parameters for pre-trade risk checks.
type RiskConfig struct {
	MaxPosition    float64
	MaxSingleTrade float64
}

// DefaultRiskConfig returns a position cap of 1000 units and 100 units per
// trade.
func DefaultRiskConfig() RiskConfig {
	return RiskConfig{MaxPosition: 1000, MaxSingleTrade: 100}
}

// RiskService sizes strategy proposals so the position stays within the
// configured caps.
type RiskService struct {
	cfg    RiskConfig
	logger *slog.Logger
}

// NewRiskService creates a RiskService.
func NewRiskService(cfg RiskConfig, logger *slog.Logger) *RiskService {
	return &RiskService{
		cfg:    cfg,
		logger: logger,
	}
}

// Approve turns a proposal into a sized decision.
//
// Rules:
//  1. hold is rejected
//  2. buy may add up to the room left under MaxPosition
//  3. sell may reduce at most the current long position
//  4. both are capped at MaxSingleTrade; a non-positive size is rejected
func (s *RiskService) Approve(p domain.Proposal, portfolio domain.PortfolioView) (domain.Decision, error) {
	if math.IsNaN(portfolio.Position) || math.IsInf(portfolio.Position, 0) {
		return domain.Decision{}, fmt.Errorf("risk_service: position %v is not finite", portfolio.Position)
	}

	var size float64
	switch p.Action {
	case domain.ActionHold:
		return reject(p.Action, ReasonHold), nil
	case domain.ActionBuy:
		size = math.Min(s.cfg.MaxSingleTrade, math.Max(0, s.cfg.MaxPosition-portfolio.Position))
	case domain.ActionSell:
		size = math.Min(s.cfg.MaxSingleTrade, math.Max(0, portfolio.Position))
	default:
		return reject(p.Action, ReasonUnknownAction), nil
	}

	if size <= 0 {
		s.logger.Debug("risk_service: risk limit reached",
			slog.String("action", string(p.Action)),
			slog.Float64("position", portfolio.Position),
			slog.Float64("max_position", s.cfg.MaxPosition),
		)
		return reject(p.Action, ReasonLimitReached), nil
	}

	return domain.Decision{
		Approved: true,
		MaxSize:  size,
		Reason:   ReasonWithinLimits,
		Action:   p.Action,
	}, nil
}

func reject(action domain.Action, reason string) domain.Decision {
	return domain.Decision{Approved: false, MaxSize: 0, Reason: reason, Action: action}
}
