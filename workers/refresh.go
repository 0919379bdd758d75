package workers

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"gococo/balances"
	"gococo/reconciler"
)

// Worker_refreshBalances keeps the per-chain token balances current until ctx ends
func Worker_refreshBalances(ctx context.Context, aggregator *balances.Aggregator, interval time.Duration) {
	log.WithField("interval", interval).Print("Starting balance refresh")
	aggregator.Run(ctx, interval)
	log.Print("Balance refresh stopped")
}

// Worker_refreshPositions keeps positions and loan activity current until ctx ends
func Worker_refreshPositions(ctx context.Context, refresher *reconciler.Refresher, interval time.Duration) {
	log.WithField("interval", interval).Print("Starting positions refresh")
	refresher.Run(ctx, interval)
	log.Print("Positions refresh stopped")
}
