package reconciler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	log "github.com/sirupsen/logrus"

	"gococo/metrics"
	"gococo/poll"
	"gococo/types"
)

const workerName = "positions"

// Refresher keeps the latest positions and activity of one account. A failed
// cycle keeps the previous snapshot.
type Refresher struct {
	reconciler *Reconciler
	account    common.Address
	limit      int

	mu        sync.RWMutex
	positions []Position
	activity  []LoanActivity
	updated   time.Time
}

func NewRefresher(r *Reconciler, account common.Address, activityLimit int) *Refresher {
	return &Refresher{reconciler: r, account: account, limit: activityLimit}
}

// Refresh runs one reconcile cycle
func (f *Refresher) Refresh(ctx context.Context) error {
	positions, err := f.reconciler.ListPositions(ctx, f.account)
	if err != nil {
		return err
	}
	activity, err := f.reconciler.ListActivity(ctx, f.account, f.limit)
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.positions, f.activity, f.updated = positions, activity, time.Now()
	f.mu.Unlock()

	metrics.LastRefresh.WithLabelValues(workerName).SetToCurrentTime()
	return nil
}

// Run refreshes once per interval until ctx is cancelled
func (f *Refresher) Run(ctx context.Context, interval time.Duration) {
	poll.Every(ctx, interval, f.Refresh, func(err error) {
		if errors.Is(err, context.Canceled) {
			return
		}
		chain := "unknown"
		var chainErr *types.ChainError
		if errors.As(err, &chainErr) {
			chain = metrics.Chain(chainErr.ChainID)
		}
		metrics.RefreshFailures.WithLabelValues(workerName, chain).Inc()
		log.WithField("account", f.account.Hex()).Printf("Positions refresh failed, keeping previous: %s", err.Error())
	})
}

// Positions returns the last snapshot and when it was taken; zero time before the first success
func (f *Refresher) Positions() ([]Position, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]Position(nil), f.positions...), f.updated
}

func (f *Refresher) Activity() ([]LoanActivity, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]LoanActivity(nil), f.activity...), f.updated
}
