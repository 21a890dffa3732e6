package archive

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/okxtrader/swapagent/internal/model"
)

type fakeStore struct {
	rows       []model.ConversationRecord
	deleted    []string
	decisions  []model.AIDecision
	decDeleted []string
}

func (f *fakeStore) ConversationsOlderThan(ctx context.Context, beforeMs int64, limit int) ([]model.ConversationRecord, error) {
	var out []model.ConversationRecord
	for _, r := range f.rows {
		if r.CreatedAtMs < beforeMs {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteConversations(ctx context.Context, ids []string) error {
	f.deleted = append(f.deleted, ids...)
	return nil
}

func (f *fakeStore) DecisionsOlderThan(ctx context.Context, beforeMs int64, limit int) ([]model.AIDecision, error) {
	var out []model.AIDecision
	for _, r := range f.decisions {
		if r.TimestampMs < beforeMs {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteDecisions(ctx context.Context, ids []string) error {
	f.decDeleted = append(f.decDeleted, ids...)
	return nil
}

type fakeUploader struct {
	puts int
	keys []string
}

func (f *fakeUploader) PutObject(ctx context.Context, input *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.puts++
	f.keys = append(f.keys, *input.Key)
	return &s3.PutObjectOutput{}, nil
}

func TestCycleUploadsAndPrunesOldConversations(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)

	store := &fakeStore{rows: []model.ConversationRecord{
		{ID: "c1", CreatedAtMs: old.UnixMilli()},
		{ID: "c2", CreatedAtMs: old.UnixMilli()},
	}}
	uploader := &fakeUploader{}

	a := New(Config{Bucket: "agent-archive", Prefix: "agent", MaxAge: 30 * 24 * time.Hour, NowMs: func() int64 { return now.UnixMilli() }}, store, uploader, zerolog.Nop())
	a.cycle(context.Background())

	if uploader.puts != 1 {
		t.Fatalf("expected one S3 upload (single day batch), got %d", uploader.puts)
	}
	if len(store.deleted) != 2 {
		t.Fatalf("expected both rows deleted after upload, got %d", len(store.deleted))
	}
}

func TestCycleUploadsAndPrunesOldDecisions(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	old := now.Add(-40 * 24 * time.Hour)

	store := &fakeStore{decisions: []model.AIDecision{
		{ID: "d1", TimestampMs: old.UnixMilli()},
		{ID: "d2", TimestampMs: old.UnixMilli()},
	}}
	uploader := &fakeUploader{}

	a := New(Config{Bucket: "agent-archive", Prefix: "agent", MaxAge: 30 * 24 * time.Hour, NowMs: func() int64 { return now.UnixMilli() }}, store, uploader, zerolog.Nop())
	a.cycle(context.Background())

	if uploader.puts != 1 {
		t.Fatalf("expected one S3 upload (single day batch), got %d", uploader.puts)
	}
	if uploader.keys[0] != "agent/decisions/"+old.UTC().Format("2006/01/02")+".jsonl.gz" {
		t.Fatalf("expected decisions key under decisions/ prefix, got %s", uploader.keys[0])
	}
	if len(store.decDeleted) != 2 {
		t.Fatalf("expected both decision rows deleted after upload, got %d", len(store.decDeleted))
	}
}

func TestCycleSkipsWhenNothingOldEnough(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	store := &fakeStore{rows: []model.ConversationRecord{{ID: "c1", CreatedAtMs: now.UnixMilli()}}}
	uploader := &fakeUploader{}

	a := New(Config{Bucket: "agent-archive", MaxAge: 30 * 24 * time.Hour, NowMs: func() int64 { return now.UnixMilli() }}, store, uploader, zerolog.Nop())
	a.cycle(context.Background())

	if uploader.puts != 0 || len(store.deleted) != 0 {
		t.Fatalf("expected no upload/delete for fresh rows")
	}
}
