package service

import (
	"context"
	"crew-staffing/internal/models"
	"crew-staffing/internal/repository"
	"errors"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// Ticker runs one reconciliation cycle for a campaign
type Ticker interface {
	Tick(ctx context.Context, campaignID string) (*models.TickResult, error)
}

// Sweeper periodically ticks every campaign whose next run is due
type Sweeper struct {
	campaigns   repository.CampaignRepository
	ticker      Ticker
	concurrency int
	batchSize   int
	now         func() time.Time
}

// NewSweeper creates a new sweeper
func NewSweeper(campaigns repository.CampaignRepository, ticker Ticker, concurrency, batchSize int) *Sweeper {
	if concurrency <= 0 {
		concurrency = 1
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &Sweeper{
		campaigns:   campaigns,
		ticker:      ticker,
		concurrency: concurrency,
		batchSize:   batchSize,
		now:         time.Now,
	}
}

// Run sweeps until the context is cancelled
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) error {
	for {
		if _, err := s.RunOnce(ctx); err != nil {
			log.Printf("error sweeping campaigns: %v", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}

// RunOnce ticks one batch of due campaigns and returns how many ticks
// completed. Contended and no-longer-active campaigns are skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	due, err := s.campaigns.ListDueCampaigns(ctx, s.now(), StaleLockAfter, s.batchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list due campaigns: %w", err)
	}

	var completed atomic.Int64
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for _, campaign := range due {
		id := campaign.ID
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			_, err := s.ticker.Tick(ctx, id)
			switch {
			case err == nil:
				completed.Add(1)
			case errors.Is(err, ErrLockContention), errors.Is(err, ErrInvalidState):
				log.Printf("campaign_id=%s: sweep skipped: %v", id, err)
			default:
				log.Printf("campaign_id=%s: sweep tick error: %v", id, err)
			}
			return nil
		})
	}

	_ = g.Wait()
	return int(completed.Load()), nil
}
