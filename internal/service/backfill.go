package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/telemetry"
)

// RecordEmbeddingRepositoryInterface defines persistence for embedded CRM records
type RecordEmbeddingRepositoryInterface interface {
	Upsert(ctx context.Context, r *domain.RecordEmbedding) error
	ListMissing(ctx context.Context, limit int) ([]domain.RecordEmbedding, error)
	UpdateEmbedding(ctx context.Context, id string, embedding []float32) error
}

// BackfillResult summarises one backfill pass
type BackfillResult struct {
	Embedded int
	Skipped  int
	Failed   int
}

// RecordInput describes a CRM record to index for similarity search
type RecordInput struct {
	Source   string
	RecordID string
	Title    string
	Content  string
}

// RecordEmbeddingService keeps CRM record embeddings searchable next to knowledge chunks
type RecordEmbeddingService struct {
	records    RecordEmbeddingRepositoryInterface
	embedder   EmbeddingClient
	uuidGen    UUIDGenerator
	batchSize  int
	delay      time.Duration
	dimensions int
	logger     *zap.Logger
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewRecordEmbeddingService creates a new RecordEmbeddingService. delay is the pause between
// embedding calls during a backfill.
func NewRecordEmbeddingService(
	records RecordEmbeddingRepositoryInterface,
	embedder EmbeddingClient,
	dimensions int,
	delay time.Duration,
	logger *zap.Logger,
) *RecordEmbeddingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RecordEmbeddingService{
		records:    records,
		embedder:   embedder,
		uuidGen:    &DefaultUUIDGenerator{},
		batchSize:  100,
		delay:      delay,
		dimensions: dimensions,
		logger:     logger,
		sleep:      sleepContext,
	}
}

// IndexRecord embeds a record and stores it under (source, record id), replacing any previous
// vector for the same record.
func (s *RecordEmbeddingService) IndexRecord(ctx context.Context, input RecordInput) (*domain.RecordEmbedding, error) {
	ctx, span := telemetry.StartSpan(ctx, "RecordEmbeddingService.IndexRecord", telemetry.SpanAttributes{
		Source:    input.Source,
		Operation: "index_record",
	})
	defer span.End()

	source := strings.TrimSpace(input.Source)
	if source == "" || source == domain.MatchSourceKnowledge {
		return nil, fmt.Errorf("%w: source", domain.ErrMissingRequiredField)
	}
	if strings.TrimSpace(input.RecordID) == "" {
		return nil, fmt.Errorf("%w: record_id", domain.ErrMissingRequiredField)
	}
	content := NormalizeWhitespace(input.Content)
	if content == "" {
		return nil, domain.ErrNoContent
	}

	rec := &domain.RecordEmbedding{
		ID:        s.uuidGen.NewString(),
		Source:    source,
		RecordID:  input.RecordID,
		Title:     strings.TrimSpace(input.Title),
		Content:   content,
		UpdatedAt: time.Now().UTC(),
	}
	vec, err := s.embed(ctx, rec)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	rec.Embedding = vec

	if err := s.records.Upsert(ctx, rec); err != nil {
		err = domain.NewStoreError("upsert record embedding", err)
		span.SetError(err)
		return nil, err
	}
	return rec, nil
}

// RunPass runs one backfill sweep for the periodic worker.
func (s *RecordEmbeddingService) RunPass(ctx context.Context) error {
	_, err := s.Backfill(ctx)
	return err
}

// Backfill embeds every record whose vector is missing, one call at a time with a pause between
// calls. A failing record is logged and left for the next pass.
func (s *RecordEmbeddingService) Backfill(ctx context.Context) (BackfillResult, error) {
	var result BackfillResult

	pending, err := s.records.ListMissing(ctx, s.batchSize)
	if err != nil {
		return result, domain.NewStoreError("list records without embedding", err)
	}
	if len(pending) == 0 {
		return result, nil
	}

	s.logger.Info("backfilling record embeddings", zap.Int("records", len(pending)))
	for i := range pending {
		rec := &pending[i]
		if strings.TrimSpace(rec.Content) == "" {
			s.logger.Debug("skipping record with empty content",
				zap.String("source", rec.Source),
				zap.String("record_id", rec.RecordID))
			result.Skipped++
			continue
		}

		if err := s.backfillOne(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			s.logger.Warn("record embedding failed",
				zap.String("source", rec.Source),
				zap.String("record_id", rec.RecordID),
				zap.Error(err))
			result.Failed++
		} else {
			result.Embedded++
		}

		if i < len(pending)-1 && s.delay > 0 {
			if err := s.sleep(ctx, s.delay); err != nil {
				return result, err
			}
		}
	}

	s.logger.Info("backfill pass finished",
		zap.Int("embedded", result.Embedded),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *RecordEmbeddingService) backfillOne(ctx context.Context, rec *domain.RecordEmbedding) error {
	vec, err := s.embed(ctx, rec)
	if err != nil {
		return err
	}
	if err := s.records.UpdateEmbedding(ctx, rec.ID, vec); err != nil {
		return domain.NewStoreError("update record embedding", err)
	}
	return nil
}

func (s *RecordEmbeddingService) embed(ctx context.Context, rec *domain.RecordEmbedding) ([]float32, error) {
	text := rec.Content
	if rec.Title != "" {
		text = rec.Title + "\n" + rec.Content
	}
	vec, err := s.embedder.GenerateEmbedding(ctx, text)
	if err != nil {
		if domain.ErrorCode(err) == "" {
			err = domain.NewEmbeddingError(err)
		}
		return nil, err
	}
	if len(vec) == 0 {
		return nil, domain.ErrEmptyEmbedding
	}
	if s.dimensions > 0 && len(vec) != s.dimensions {
		return nil, domain.NewDimensionMismatchError(s.dimensions, len(vec))
	}
	return vec, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
