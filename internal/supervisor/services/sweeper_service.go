// Velograph - Ecosystem Analytics and Discovery Ranking Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/velograph

package services

import (
	"context"
	"time"

	"github.com/tomtom215/velograph/internal/database"
	"github.com/tomtom215/velograph/internal/logging"
	"github.com/tomtom215/velograph/internal/metrics"
)

// SweeperService periodically removes pending referrals that can no
// longer affect attribution: consumed rows and rows older than the
// attribution window. Attribution stays correct without it (the window
// is enforced at query time); the sweeper only keeps the table from
// growing without bound.
type SweeperService struct {
	db       *database.DB
	window   time.Duration
	interval time.Duration
}

// NewSweeperService creates the referral sweeper.
func NewSweeperService(db *database.DB, window, interval time.Duration) *SweeperService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &SweeperService{
		db:       db,
		window:   window,
		interval: interval,
	}
}

// Serve implements suture.Service, sweeping on every tick until the
// context is canceled.
func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			swept, err := s.db.SweepReferrals(ctx, s.window, time.Now().UTC())
			if err != nil {
				logging.Error().Err(err).Msg("Referral sweep failed")
				continue
			}
			if swept > 0 {
				metrics.ReferralsSwept.Add(float64(swept))
				logging.Debug().Int64("swept", swept).Msg("Referral sweep completed")
			}
		}
	}
}

// String identifies the service in supervisor logs.
func (s *SweeperService) String() string {
	return "referral-sweeper"
}
