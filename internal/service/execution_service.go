package service

import "github.com/alanyoungcy/lobsim/internal/domain"

// ExecutionService turns approved decisions into concrete limit orders.
type ExecutionService struct{}

// NewExecutionService returns an ExecutionService.
func NewExecutionService() *ExecutionService { return &ExecutionService{} }

// Build returns a single limit order at the bar price for the approved size,
// or no orders when the decision is rejected, empty or not directional.
func (s *ExecutionService) Build(d domain.Decision, state domain.MarketState) ([]domain.OrderRequest, error) {
	if !d.Approved || d.MaxSize <= 0 {
		return []domain.OrderRequest{}, nil
	}
	side, ok := d.Action.Side()
	if !ok {
		return []domain.OrderRequest{}, nil
	}
	return []domain.OrderRequest{{
		Side:     side,
		Price:    state.Price,
		Quantity: d.MaxSize,
	}}, nil
}
