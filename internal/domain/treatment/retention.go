package treatment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sourcegraph/conc/pool"

	"github.com/elanza/clinic/internal/platform/blobstore"
	"github.com/elanza/clinic/internal/platform/events"
	"github.com/elanza/clinic/internal/platform/metrics"
)

const (
	DefaultMaxEntries = 20
	DefaultMaxPhotos  = 8

	blobDeleteConcurrency = 8
)

// RetentionEngine bounds the history of a package: at most maxEntries
// entries and at most maxPhotos photos across all of them. The newest
// entries and photos always win.
type RetentionEngine struct {
	history    HistoryRepository
	blobs      blobstore.Store
	rec        metrics.Recorder
	logger     zerolog.Logger
	maxEntries int
	maxPhotos  int
}

func NewRetentionEngine(history HistoryRepository, blobs blobstore.Store, rec metrics.Recorder,
	logger zerolog.Logger, maxEntries, maxPhotos int) *RetentionEngine {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	if maxPhotos < 0 {
		maxPhotos = DefaultMaxPhotos
	}
	return &RetentionEngine{
		history:    history,
		blobs:      blobs,
		rec:        rec,
		logger:     logger.With().Str("component", "retention").Logger(),
		maxEntries: maxEntries,
		maxPhotos:  maxPhotos,
	}
}

// Report summarises one retention pass.
type Report struct {
	EntriesDeleted   int `json:"entriesDeleted"`
	EntriesRewritten int `json:"entriesRewritten"`
	PhotosDeleted    int `json:"photosDeleted"`
	BlobFailures     int `json:"blobFailures"`
}

// Handle is the events.Handler for history.appended. Appends without
// photos cannot push the package over either bound that matters for
// storage cost and are skipped.
func (r *RetentionEngine) Handle(ctx context.Context, ev events.Event) error {
	var msg HistoryAppended
	if err := ev.Decode(&msg); err != nil {
		return err
	}
	if msg.PhotoCount < 1 {
		return nil
	}
	id, err := uuid.Parse(msg.PackageID)
	if err != nil {
		return fmt.Errorf("history.appended: package id %q: %w", msg.PackageID, err)
	}
	_, err = r.Enforce(ctx, id)
	return err
}

// Enforce applies both bounds to the package. Entry deletes and photo
// rewrites are fatal on error; blob deletions are best effort.
func (r *RetentionEngine) Enforce(ctx context.Context, packageID uuid.UUID) (*Report, error) {
	log := r.logger.With().Str("package_id", packageID.String()).Logger()

	entries, err := r.history.ListByPackage(ctx, packageID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})

	rep := &Report{}

	// Step A: drop whole entries past the newest maxEntries.
	if len(entries) > r.maxEntries {
		var orphaned []string
		for _, e := range entries[r.maxEntries:] {
			if err := r.history.Delete(ctx, e.ID); err != nil {
				return rep, fmt.Errorf("delete history entry %s: %w", e.ID, err)
			}
			rep.EntriesDeleted++
			orphaned = append(orphaned, e.Photos...)
		}
		entries = entries[:r.maxEntries]
		rep.PhotosDeleted += len(orphaned)
		rep.BlobFailures += r.deleteBlobs(ctx, log, orphaned)
	}

	// Step B: keep the first maxPhotos photos walking newest-first.
	var evicted []string
	kept := 0
	for _, e := range entries {
		room := r.maxPhotos - kept
		if room < 0 {
			room = 0
		}
		if len(e.Photos) <= room {
			kept += len(e.Photos)
			continue
		}
		keep := append([]string{}, e.Photos[:room]...)
		evicted = append(evicted, e.Photos[room:]...)
		if err := r.history.UpdatePhotos(ctx, e.ID, keep); err != nil {
			return rep, fmt.Errorf("rewrite photos of entry %s: %w", e.ID, err)
		}
		e.Photos = keep
		kept += len(keep)
		rep.EntriesRewritten++
	}
	rep.PhotosDeleted += len(evicted)
	rep.BlobFailures += r.deleteBlobs(ctx, log, evicted)

	r.rec.RetentionRun(rep.EntriesDeleted, rep.PhotosDeleted)
	if rep.EntriesDeleted > 0 || rep.PhotosDeleted > 0 {
		log.Info().
			Int("entries_deleted", rep.EntriesDeleted).
			Int("entries_rewritten", rep.EntriesRewritten).
			Int("photos_deleted", rep.PhotosDeleted).
			Int("blob_failures", rep.BlobFailures).
			Msg("history retention applied")
	}
	return rep, nil
}

// deleteBlobs removes the objects behind urls concurrently and returns how
// many deletions failed. A failure never stops the others.
func (r *RetentionEngine) deleteBlobs(ctx context.Context, log zerolog.Logger, urls []string) int {
	if len(urls) == 0 {
		return 0
	}
	var failures int64
	p := pool.New().WithMaxGoroutines(blobDeleteConcurrency)
	for _, u := range urls {
		u := u
		p.Go(func() {
			path := blobstore.PathFromURL(u)
			err := r.blobs.Delete(ctx, path)
			switch {
			case err == nil:
			case errors.Is(err, blobstore.ErrNotFound):
				log.Debug().Str("path", path).Msg("photo already gone")
			default:
				atomic.AddInt64(&failures, 1)
				r.rec.BlobDeleteFailure()
				log.Warn().Err(err).Str("path", path).Msg("photo delete failed")
			}
		})
	}
	p.Wait()
	return int(failures)
}
