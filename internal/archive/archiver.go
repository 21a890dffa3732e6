// Package archive periodically moves old conversations and AI decisions
// from MongoDB to gzipped NDJSON objects in S3, deleting the local rows
// once the upload succeeds. Grounded on the feed simulator's
// internal/archive package (cursor-based cutoff, group-by-day batching,
// gzip NDJSON encoding), adapted from local-disk rotation to S3 upload
// since there is no bounded local retention requirement for this domain.
package archive

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/model"
)

// Store is the persistence surface the archiver reads from and prunes.
type Store interface {
	ConversationsOlderThan(ctx context.Context, beforeMs int64, limit int) ([]model.ConversationRecord, error)
	DeleteConversations(ctx context.Context, ids []string) error
	DecisionsOlderThan(ctx context.Context, beforeMs int64, limit int) ([]model.AIDecision, error)
	DeleteDecisions(ctx context.Context, ids []string) error
}

// Uploader is the S3 surface the archiver writes through; *s3.Client
// implements it.
type Uploader interface {
	PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

const batchSize = 500

// Archiver moves conversation/decision rows older than MaxAge to S3.
type Archiver struct {
	store    Store
	s3       Uploader
	bucket   string
	prefix   string
	interval time.Duration
	maxAge   time.Duration
	log      zerolog.Logger
	nowMs    func() int64
}

// Config configures the archiver's cadence and S3 destination.
type Config struct {
	Bucket   string
	Prefix   string
	Interval time.Duration
	MaxAge   time.Duration
	NowMs    func() int64
}

// New builds an Archiver, applying defaults (6h interval, 30-day max age)
// when left zero.
func New(cfg Config, store Store, uploader Uploader, logger zerolog.Logger) *Archiver {
	if cfg.Interval <= 0 {
		cfg.Interval = 6 * time.Hour
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 30 * 24 * time.Hour
	}
	if cfg.NowMs == nil {
		cfg.NowMs = func() int64 { return time.Now().UnixMilli() }
	}
	return &Archiver{
		store:    store,
		s3:       uploader,
		bucket:   cfg.Bucket,
		prefix:   cfg.Prefix,
		interval: cfg.Interval,
		maxAge:   cfg.MaxAge,
		log:      logger.With().Str("subsystem", "archive").Logger(),
		nowMs:    cfg.NowMs,
	}
}

// Run blocks, archiving on Interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) {
	a.cycle(ctx)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.cycle(ctx)
		}
	}
}

func (a *Archiver) cycle(ctx context.Context) {
	cutoff := a.nowMs() - a.maxAge.Milliseconds()
	a.cycleConversations(ctx, cutoff)
	a.cycleDecisions(ctx, cutoff)
}

func (a *Archiver) cycleConversations(ctx context.Context, cutoff int64) {
	rows, err := a.store.ConversationsOlderThan(ctx, cutoff, batchSize)
	if err != nil {
		a.log.Warn().Err(err).Msg("archive: conversations query failed")
		return
	}
	if len(rows) == 0 {
		return
	}

	for day, batch := range groupByDay(rows) {
		if err := uploadBatch(ctx, a, "conversations", day, batch); err != nil {
			a.log.Warn().Err(err).Str("day", day).Msg("archive: conversations upload failed")
			continue
		}
		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		if err := a.store.DeleteConversations(ctx, ids); err != nil {
			a.log.Warn().Err(err).Str("day", day).Msg("archive: delete after upload failed")
			continue
		}
		a.log.Info().Str("day", day).Int("count", len(batch)).Msg("archive: uploaded and pruned conversations")
	}
}

func (a *Archiver) cycleDecisions(ctx context.Context, cutoff int64) {
	rows, err := a.store.DecisionsOlderThan(ctx, cutoff, batchSize)
	if err != nil {
		a.log.Warn().Err(err).Msg("archive: decisions query failed")
		return
	}
	if len(rows) == 0 {
		return
	}

	for day, batch := range groupDecisionsByDay(rows) {
		if err := uploadBatch(ctx, a, "decisions", day, batch); err != nil {
			a.log.Warn().Err(err).Str("day", day).Msg("archive: decisions upload failed")
			continue
		}
		ids := make([]string, len(batch))
		for i, r := range batch {
			ids[i] = r.ID
		}
		if err := a.store.DeleteDecisions(ctx, ids); err != nil {
			a.log.Warn().Err(err).Str("day", day).Msg("archive: delete after upload failed")
			continue
		}
		a.log.Info().Str("day", day).Int("count", len(batch)).Msg("archive: uploaded and pruned decisions")
	}
}

func groupByDay(rows []model.ConversationRecord) map[string][]model.ConversationRecord {
	batches := make(map[string][]model.ConversationRecord)
	for _, r := range rows {
		day := time.UnixMilli(r.CreatedAtMs).UTC().Format("2006/01/02")
		batches[day] = append(batches[day], r)
	}
	return batches
}

func groupDecisionsByDay(rows []model.AIDecision) map[string][]model.AIDecision {
	batches := make(map[string][]model.AIDecision)
	for _, r := range rows {
		day := time.UnixMilli(r.TimestampMs).UTC().Format("2006/01/02")
		batches[day] = append(batches[day], r)
	}
	return batches
}

// uploadBatch gzip-NDJSON-encodes rows and uploads them under
// <prefix>/<kind>/<day>.jsonl.gz. kind is "conversations" or "decisions".
func uploadBatch[T any](ctx context.Context, a *Archiver, kind, day string, rows []T) error {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := json.NewEncoder(gz)
	for _, r := range rows {
		if err := enc.Encode(r); err != nil {
			gz.Close()
			return fmt.Errorf("archive: encode: %w", err)
		}
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("archive: gzip close: %w", err)
	}

	key := fmt.Sprintf("%s/%s/%s.jsonl.gz", a.prefix, kind, day)
	_, err := a.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          &a.bucket,
		Key:             &key,
		Body:            bytes.NewReader(buf.Bytes()),
		ContentType:     strPtr("application/x-ndjson"),
		ContentEncoding: strPtr("gzip"),
	})
	if err != nil {
		return fmt.Errorf("archive: s3 put object: %w", err)
	}
	return nil
}

func strPtr(s string) *string { return &s }
