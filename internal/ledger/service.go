package ledger

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/congo-pay/icrc_ledger/internal/account"
	"github.com/congo-pay/icrc_ledger/internal/metrics"
	"github.com/congo-pay/icrc_ledger/internal/notification"
	"github.com/congo-pay/icrc_ledger/internal/storage"
	"github.com/congo-pay/icrc_ledger/internal/transaction"
)

// Clock supplies the ledger time of each request.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Ledger is the contract the HTTP adapter consumes.
type Ledger interface {
	Transfer(ctx context.Context, caller account.Principal, args TransferArgs) (Receipt, error)
	TransferFrom(ctx context.Context, caller account.Principal, args TransferFromArgs) (Receipt, error)
	Approve(ctx context.Context, caller account.Principal, args ApproveArgs) (Receipt, error)
	Mint(ctx context.Context, caller account.Principal, args MintArgs) (Receipt, error)
	Burn(ctx context.Context, caller account.Principal, args BurnArgs) (Receipt, error)

	BalanceOf(acc account.Account) uint64
	Supply() Supply
	Metadata() Metadata
	Allowance(owner, spender account.Account) Allowance
	GetTransactions(ctx context.Context, start, length uint64) (Page, error)
	GetTransaction(ctx context.Context, index uint64) (transaction.Transaction, error)
	Archives() []storage.ShardDescriptor
}

// Supply summarizes token supply counters.
type Supply struct {
	Total  uint64 `json:"total_supply"`
	Minted uint64 `json:"minted"`
	Burned uint64 `json:"burned"`
}

// Page is a slice of the transaction log.
type Page struct {
	LogLength    uint64                    `json:"log_length"`
	FirstIndex   uint64                    `json:"first_index"`
	Transactions []transaction.Transaction `json:"transactions"`
}

// ServiceOption customizes a Service.
type ServiceOption func(*Service)

// WithClock overrides the ledger clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithMetrics records operation metrics on collector.
func WithMetrics(collector *metrics.Collector) ServiceOption {
	return func(s *Service) { s.metrics = collector }
}

// WithNotifier hands every committed transaction to notifier.
func WithNotifier(notifier notification.Notifier) ServiceOption {
	return func(s *Service) { s.notifier = notifier }
}

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = logger }
}

type result struct {
	receipt Receipt
	err     error
}

type request struct {
	operation string
	run       func(ctx context.Context, now time.Time) (Receipt, error)
	done      chan result
}

// Service runs one Engine on a single executor goroutine. Mutations never
// interleave; readers observe the state before or after each mutation.
type Service struct {
	engine   *Engine
	clock    Clock
	metrics  *metrics.Collector
	notifier notification.Notifier
	logger   *slog.Logger

	mu       sync.RWMutex
	requests chan request
	stopped  chan struct{}
}

var _ Ledger = (*Service)(nil)

// NewService wraps engine. Run must be started before mutations are served.
func NewService(engine *Engine, opts ...ServiceOption) *Service {
	s := &Service{
		engine:   engine,
		clock:    systemClock{},
		logger:   slog.Default(),
		requests: make(chan request),
		stopped:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.publishState()
	return s
}

// Run executes queued mutations until ctx is done.
func (s *Service) Run(ctx context.Context) error {
	defer close(s.stopped)
	for {
		select {
		case <-ctx.Done():
			return nil
		case req := <-s.requests:
			req.done <- s.execute(ctx, req)
		}
	}
}

// execute runs one request under the write lock. The request context is not
// consulted: once dequeued a request runs to completion.
func (s *Service) execute(ctx context.Context, req request) result {
	runCtx := context.WithoutCancel(ctx)

	s.mu.Lock()
	now := s.clock.Now()
	started := time.Now()
	receipt, err := req.run(runCtx, now)
	elapsed := time.Since(started)
	s.publishState()
	s.mu.Unlock()

	s.metrics.ObserveOperation(req.operation, outcome(receipt, err), elapsed)
	if err != nil {
		var ledgerErr *Error
		if !errors.As(err, &ledgerErr) || errors.Is(err, ErrLogFull) {
			s.logger.Error("ledger operation failed", slog.String("operation", req.operation), slog.Any("error", err))
		}
		return result{err: err}
	}
	if receipt.Transaction != nil {
		s.notify(runCtx, *receipt.Transaction)
	}
	return result{receipt: receipt}
}

func (s *Service) notify(ctx context.Context, tx transaction.Transaction) {
	if s.notifier == nil {
		return
	}
	msg, err := notification.NewMessage(tx)
	if err == nil {
		err = s.notifier.Send(ctx, msg)
	}
	if err != nil {
		s.logger.Warn("notification failed", slog.Uint64("index", tx.Index), slog.Any("error", err))
	}
}

// publishState must be called with the lock held.
func (s *Service) publishState() {
	e := s.engine
	s.metrics.SetState(e.LogLength(), e.LiveLength(), len(e.Archives()), e.TotalSupply())
}

func outcome(r Receipt, err error) string {
	var ledgerErr *Error
	switch {
	case err == nil && r.Duplicate:
		return metrics.OutcomeDuplicate
	case err == nil:
		return metrics.OutcomeCommitted
	case errors.As(err, &ledgerErr):
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeFailed
	}
}

// submit queues a mutation. A caller whose context ends before the request is
// dequeued gets ctx.Err(); after that the request completes regardless.
func (s *Service) submit(ctx context.Context, operation string, run func(context.Context, time.Time) (Receipt, error)) (Receipt, error) {
	req := request{operation: operation, run: run, done: make(chan result, 1)}
	select {
	case s.requests <- req:
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	case <-s.stopped:
		return Receipt{}, ErrStopped
	}
	select {
	case res := <-req.done:
		return res.receipt, res.err
	case <-ctx.Done():
		return Receipt{}, ctx.Err()
	}
}

// Transfer queues a transfer.
func (s *Service) Transfer(ctx context.Context, caller account.Principal, args TransferArgs) (Receipt, error) {
	return s.submit(ctx, "transfer", func(ctx context.Context, now time.Time) (Receipt, error) {
		return s.engine.Transfer(ctx, caller, args, now)
	})
}

// TransferFrom queues a transfer on behalf of an owner.
func (s *Service) TransferFrom(ctx context.Context, caller account.Principal, args TransferFromArgs) (Receipt, error) {
	return s.submit(ctx, "transfer_from", func(ctx context.Context, now time.Time) (Receipt, error) {
		return s.engine.TransferFrom(ctx, caller, args, now)
	})
}

// Approve queues an approval.
func (s *Service) Approve(ctx context.Context, caller account.Principal, args ApproveArgs) (Receipt, error) {
	return s.submit(ctx, "approve", func(ctx context.Context, now time.Time) (Receipt, error) {
		return s.engine.Approve(ctx, caller, args, now)
	})
}

// Mint queues a mint.
func (s *Service) Mint(ctx context.Context, caller account.Principal, args MintArgs) (Receipt, error) {
	return s.submit(ctx, "mint", func(ctx context.Context, now time.Time) (Receipt, error) {
		return s.engine.Mint(ctx, caller, args, now)
	})
}

// Burn queues a burn.
func (s *Service) Burn(ctx context.Context, caller account.Principal, args BurnArgs) (Receipt, error) {
	return s.submit(ctx, "burn", func(ctx context.Context, now time.Time) (Receipt, error) {
		return s.engine.Burn(ctx, caller, args, now)
	})
}

// BalanceOf returns the balance of acc.
func (s *Service) BalanceOf(acc account.Account) uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.BalanceOf(acc)
}

// Supply returns the supply counters from one consistent snapshot.
func (s *Service) Supply() Supply {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Supply{Total: s.engine.TotalSupply(), Minted: s.engine.Minted(), Burned: s.engine.Burned()}
}

// Metadata returns the token metadata.
func (s *Service) Metadata() Metadata {
	return s.engine.Metadata()
}

// Allowance returns the active allowance at the current ledger time.
func (s *Service) Allowance(owner, spender account.Account) Allowance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Allowance(owner, spender, s.clock.Now())
}

// GetTransactions returns up to length transactions from start. Sealed shards
// are read after the lock is released.
func (s *Service) GetTransactions(ctx context.Context, start, length uint64) (Page, error) {
	s.mu.RLock()
	plan := s.engine.PlanTransactions(start, length)
	logLength := s.engine.LogLength()
	s.mu.RUnlock()

	txs, err := plan.Fetch(ctx)
	if err != nil {
		return Page{}, err
	}
	return Page{LogLength: logLength, FirstIndex: start, Transactions: txs}, nil
}

// GetTransaction returns the transaction at index.
func (s *Service) GetTransaction(ctx context.Context, index uint64) (transaction.Transaction, error) {
	page, err := s.GetTransactions(ctx, index, 1)
	if err != nil {
		return transaction.Transaction{}, err
	}
	if len(page.Transactions) == 0 {
		return transaction.Transaction{}, reject(ErrNotFound)
	}
	return page.Transactions[0], nil
}

// Archives returns the sealed shard directory.
func (s *Service) Archives() []storage.ShardDescriptor {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine.Archives()
}
