package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/investmarket/internal/secondarymarket/domain"
	"github.com/wyfcoding/pkg/idgen"
)

var ErrUnknownHold = errors.New("unknown payment hold")

// Simulator 本地开发用的内存支付通道，未配置外部通道地址时兜底。
type Simulator struct {
	mu    sync.Mutex
	holds map[string]decimal.Decimal
}

func NewSimulator() *Simulator {
	return &Simulator{holds: make(map[string]decimal.Decimal)}
}

var _ domain.PaymentAuthority = (*Simulator)(nil)

func (s *Simulator) HoldFunds(_ context.Context, _ string, amount decimal.Decimal, _, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ref := fmt.Sprintf("SIM-%d", idgen.GenID())
	s.holds[ref] = amount
	return ref, nil
}

func (s *Simulator) CaptureOrRelease(_ context.Context, externalRef string, _ bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.holds[externalRef]; !ok {
		return ErrUnknownHold
	}
	delete(s.holds, externalRef)
	return nil
}
