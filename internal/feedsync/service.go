package feedsync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/conference-schedule/backend/internal/logging"
	"github.com/conference-schedule/backend/internal/metrics"
	"github.com/conference-schedule/backend/internal/storage"
	"github.com/conference-schedule/backend/internal/storage/models"
)

// RunRecorder persists the outcome of each pass.
type RunRecorder interface {
	Start(ctx context.Context, kind string) error
	Finish(ctx context.Context, kind, status string, applied int64, syncErr *string) error
}

// Notifier receives sync status events for the UI-status channel.
type Notifier interface {
	BroadcastSyncStarted(kind string)
	BroadcastSyncCompleted(kind, status string, applied int64, errMsg string)
}

// ResourceResult is the outcome for one resource within a pass.
type ResourceResult struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Applied int64  `json:"applied"`
	Error   string `json:"error,omitempty"`
}

// Result is the outcome of a sync pass.
type Result struct {
	Group      Group            `json:"group"`
	Status     string           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Applied    int64            `json:"applied"`
	Seeded     int              `json:"seeded"`
	Resources  []ResourceResult `json:"resources,omitempty"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
}

// Service runs sync passes for the feed groups.
type Service struct {
	resources    []Resource
	detector     *Detector
	fetcher      *RemoteFetcher
	seeder       *Seeder
	fingerprints FingerprintStore
	runs         RunRecorder
	notifier     Notifier
}

// NewService creates a sync service. notifier may be nil.
func NewService(
	resources []Resource,
	detector *Detector,
	fetcher *RemoteFetcher,
	seeder *Seeder,
	fingerprints FingerprintStore,
	runs RunRecorder,
	notifier Notifier,
) *Service {
	return &Service{
		resources:    resources,
		detector:     detector,
		fetcher:      fetcher,
		seeder:       seeder,
		fingerprints: fingerprints,
		runs:         runs,
		notifier:     notifier,
	}
}

// SyncSchedule runs the schedule pass (rooms, tracks, speakers, sessions,
// presentations and blocks).
func (s *Service) SyncSchedule(ctx context.Context, force bool) (*Result, error) {
	return s.Sync(ctx, GroupSchedule, force)
}

// SyncNews runs the news pass.
func (s *Service) SyncNews(ctx context.Context, force bool) (*Result, error) {
	return s.Sync(ctx, GroupNews, force)
}

// SyncTweets runs the tweets pass.
func (s *Service) SyncTweets(ctx context.Context, force bool) (*Result, error) {
	return s.Sync(ctx, GroupTweets, force)
}

// Sync runs one pass over group. Transport and parse failures only abort the
// affected resource; a reconciliation failure ends the pass. The returned
// error is non-nil only when the pass as a whole failed.
func (s *Service) Sync(ctx context.Context, group Group, force bool) (*Result, error) {
	kind := string(group)
	result := &Result{Group: group, StartedAt: time.Now().UTC()}
	resources := InGroup(s.resources, group)
	if len(resources) == 0 {
		return nil, fmt.Errorf("unknown sync group %q", group)
	}

	if err := s.runs.Start(ctx, kind); err != nil {
		logging.Warn().Err(err).Str("kind", kind).Msg("Failed to record sync start")
	}
	if s.notifier != nil {
		s.notifier.BroadcastSyncStarted(kind)
	}

	err := s.run(ctx, group, resources, force, result)
	s.finish(ctx, result, err)
	return result, err
}

func (s *Service) run(ctx context.Context, group Group, resources []Resource, force bool, result *Result) error {
	if group == GroupSchedule && s.seeder != nil {
		seeded, err := s.seeder.Seed(ctx, s.resources)
		result.Seeded = seeded
		if err != nil {
			logging.Warn().Err(err).Msg("Local seeding incomplete")
		}
	}

	if !s.detector.ShouldFetchRemote(ctx, force) {
		result.Status = models.SyncStatusSkipped
		result.Reason = "network policy"
		return nil
	}

	changes, err := s.detector.HasRemoteChanged(ctx, resources)
	if err != nil {
		result.Status = models.SyncStatusError
		return err
	}
	if !changes.Any() {
		result.Status = models.SyncStatusSkipped
		result.Reason = "unchanged"
		return nil
	}

	var failed int
	for _, r := range resources {
		fp, stats, err := s.fetcher.FetchAndApply(ctx, r)
		if err != nil {
			failed++
			result.Resources = append(result.Resources, ResourceResult{
				Name:   r.Name,
				Status: models.SyncStatusError,
				Error:  describe(err),
			})

			var rerr *storage.ReconciliationError
			if errors.As(err, &rerr) {
				result.Status = models.SyncStatusError
				return err
			}
			logging.Warn().Err(err).Str("resource", r.Name).Msg("Feed sync failed")
			continue
		}

		if err := s.fingerprints.Put(r.URL, fp); err != nil {
			logging.Warn().Err(err).Str("resource", r.Name).Msg("Failed to persist fingerprint")
		}
		result.Applied += stats.Total()
		result.Resources = append(result.Resources, ResourceResult{
			Name:    r.Name,
			Status:  models.SyncStatusSuccess,
			Applied: stats.Total(),
		})
	}

	switch {
	case failed == 0:
		result.Status = models.SyncStatusSuccess
	case failed < len(resources):
		result.Status = models.SyncStatusPartial
	default:
		result.Status = models.SyncStatusError
		return fmt.Errorf("all %d %s resources failed", failed, group)
	}
	return nil
}

func (s *Service) finish(ctx context.Context, result *Result, err error) {
	kind := string(result.Group)
	result.FinishedAt = time.Now().UTC()

	var errMsg *string
	var msg string
	if err != nil {
		msg = err.Error()
		errMsg = &msg
		logging.Error().Err(err).Str("kind", kind).Msg("Sync pass failed")
	} else {
		logging.Info().
			Str("kind", kind).
			Str("status", result.Status).
			Str("reason", result.Reason).
			Int64("applied", result.Applied).
			Msg("Sync pass finished")
	}

	if err := s.runs.Finish(ctx, kind, result.Status, result.Applied, errMsg); err != nil {
		logging.Warn().Err(err).Str("kind", kind).Msg("Failed to record sync result")
	}
	metrics.ObserveSyncPass(kind, result.Status, result.StartedAt)
	if s.notifier != nil {
		s.notifier.BroadcastSyncCompleted(kind, result.Status, result.Applied, msg)
	}
}
