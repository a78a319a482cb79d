// Package rates fetches the latest readings of the benchmark interest-rate
// series the widget displays.
package rates

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/loanops/dealbridge/internal/events"
)

// FREDClient is the subset of the FRED client the service needs.
type FREDClient interface {
	LatestObservation(ctx context.Context, seriesID string) (*float64, error)
}

// Snapshot holds the latest value per benchmark series. A nil field means
// the series currently reports no usable value and marshals as null.
type Snapshot struct {
	SOFR       *float64 `json:"SOFR"`
	Prime      *float64 `json:"PRIME"`
	Treasury5  *float64 `json:"TREASURY_5Y"`
	Treasury10 *float64 `json:"TREASURY_10Y"`
}

// The FRED series behind each response field.
const (
	seriesSOFR       = "SOFR"
	seriesPrime      = "DPRIME"
	seriesTreasury5  = "DGS5"
	seriesTreasury10 = "DGS10"
)

// Service fetches rate snapshots. Every snapshot is a live read of all
// four series; no caching.
type Service struct {
	client FREDClient
	events *events.Manager
	log    zerolog.Logger
}

// NewService creates a rates service. events may be nil.
func NewService(client FREDClient, eventManager *events.Manager, log zerolog.Logger) *Service {
	return &Service{
		client: client,
		events: eventManager,
		log:    log.With().Str("service", "rates").Logger(),
	}
}

// Fetch retrieves all four series concurrently. A series with no usable
// value yields a nil field; any upstream failure fails the whole snapshot.
func (s *Service) Fetch(ctx context.Context) (*Snapshot, error) {
	snapshot := &Snapshot{}

	targets := []struct {
		series string
		dest   **float64
	}{
		{seriesSOFR, &snapshot.SOFR},
		{seriesPrime, &snapshot.Prime},
		{seriesTreasury5, &snapshot.Treasury5},
		{seriesTreasury10, &snapshot.Treasury10},
	}

	errs := make([]error, len(targets))

	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, series string, dest **float64) {
			defer wg.Done()
			value, err := s.client.LatestObservation(ctx, series)
			if err != nil {
				errs[i] = err
				return
			}
			*dest = value
		}(i, target.series, target.dest)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("rate fetch failed: %w", err)
		}
	}

	if s.events != nil {
		s.events.Emit(events.RatesFetched, "rates", map[string]interface{}{
			"sofr":         snapshot.SOFR,
			"prime":        snapshot.Prime,
			"treasury_5y":  snapshot.Treasury5,
			"treasury_10y": snapshot.Treasury10,
		})
	}

	s.log.Debug().Msg("Rate snapshot fetched")
	return snapshot, nil
}
