package gateway

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	}
	return "closed"
}

var ErrCircuitOpen = errors.New("circuit breaker is open")

// 連続失敗がmaxFailuresに達したらresetTimeoutの間は呼ばない。
// ロックはカウンタの更新だけで、fnの実行中は持たない。
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	now          func() time.Time

	mu              sync.Mutex
	state           State
	failureCount    int
	lastFailureTime time.Time
	probing         bool
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		now:          time.Now,
		state:        StateClosed,
	}
}

func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()

	// 呼び出し元のキャンセルは相手の障害として数えない
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		cb.release()
		return err
	}
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateOpen:
		if cb.now().Sub(cb.lastFailureTime) <= cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.probing = true
		return nil
	case StateHalfOpen:
		// 試しの1件だけ通す
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) release() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateHalfOpen {
		cb.probing = false
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failureCount++
		cb.lastFailureTime = cb.now()
		if cb.state == StateHalfOpen || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
		cb.probing = false
		return
	}

	cb.state = StateClosed
	cb.failureCount = 0
	cb.probing = false
}
