package service

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/extract"
	"github.com/cloo-solutions/crmkb/internal/telemetry"
)

// DocumentRepositoryInterface defines the repository interface for knowledge documents
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.KnowledgeDocument) error
	GetByID(ctx context.Context, id string) (*domain.KnowledgeDocument, error)
	ListWithChunkCount(ctx context.Context) ([]*domain.KnowledgeDocument, error)
	Delete(ctx context.Context, id string) error
}

// ChunkRepositoryInterface defines the repository interface for knowledge chunks
type ChunkRepositoryInterface interface {
	AppendChunks(ctx context.Context, documentID string, chunks []domain.KnowledgeChunk) error
	ListByDocument(ctx context.Context, documentID string) ([]domain.KnowledgeChunk, error)
}

// TextExtractor turns raw file bytes into text, choosing the format from the file name.
type TextExtractor interface {
	Extract(ctx context.Context, data []byte, fileName string) (string, error)
}

// BlobStore optionally retains raw uploads.
type BlobStore interface {
	Put(ctx context.Context, data []byte, fileName string) (domain.StoredObject, error)
	Delete(ctx context.Context, storagePath string) error
}

// FileLinker is implemented by blob stores that can hand out temporary download links.
type FileLinker interface {
	DownloadURL(ctx context.Context, storagePath string) (string, error)
}

// ProgressFunc receives human-readable progress messages during ingestion.
type ProgressFunc func(message string)

func noProgress(string) {}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// KnowledgeDeps wires a KnowledgeService. Documents, TxRunner and Embedder are required.
type KnowledgeDeps struct {
	Documents   DocumentRepositoryInterface
	Chunks      ChunkRepositoryInterface
	TxRunner    TxRunner
	Extractor   TextExtractor
	Embedder    EmbeddingClient
	Blobs       BlobStore
	UUIDGen     UUIDGenerator
	Clock       func() time.Time
	Logger      *zap.Logger
	ChunkConfig ChunkConfig
	Dimensions  int
}

// KnowledgeService ingests documents into the knowledge base and manages their lifecycle
type KnowledgeService struct {
	docs       DocumentRepositoryInterface
	chunks     ChunkRepositoryInterface
	txRunner   TxRunner
	extractor  TextExtractor
	embedder   EmbeddingClient
	blobs      BlobStore
	uuidGen    UUIDGenerator
	now        func() time.Time
	logger     *zap.Logger
	chunkCfg   ChunkConfig
	dimensions int
}

// NewKnowledgeService creates a new KnowledgeService instance
func NewKnowledgeService(deps KnowledgeDeps) *KnowledgeService {
	s := &KnowledgeService{
		docs:       deps.Documents,
		chunks:     deps.Chunks,
		txRunner:   deps.TxRunner,
		extractor:  deps.Extractor,
		embedder:   deps.Embedder,
		blobs:      deps.Blobs,
		uuidGen:    deps.UUIDGen,
		now:        deps.Clock,
		logger:     deps.Logger,
		chunkCfg:   deps.ChunkConfig,
		dimensions: deps.Dimensions,
	}
	if s.uuidGen == nil {
		s.uuidGen = &DefaultUUIDGenerator{}
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.chunkCfg.Size <= 0 {
		s.chunkCfg = DefaultChunkConfig()
	}
	return s
}

// ManualEntryInput represents a knowledge entry typed in directly
type ManualEntryInput struct {
	Title       string
	Description string
	Content     string
	CreatedBy   string
}

// IngestFileInput represents an uploaded file. Title and Description are derived from the
// file name when empty.
type IngestFileInput struct {
	FileName    string
	Data        []byte
	Title       string
	Description string
	CreatedBy   string
}

// CreateManualEntry chunks, embeds and stores a manual entry
func (s *KnowledgeService) CreateManualEntry(ctx context.Context, input ManualEntryInput) (*domain.KnowledgeDocument, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.CreateManualEntry", telemetry.SpanAttributes{
		Operation: "create_manual",
	})
	defer span.End()

	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, fmt.Errorf("%w: title", domain.ErrMissingRequiredField)
	}
	if strings.TrimSpace(input.Content) == "" {
		return nil, domain.ErrNoContent
	}

	doc := domain.NewKnowledgeDocument(s.uuidGen.NewString(), title, strings.TrimSpace(input.Description), domain.SourceTypeManual, s.now())
	doc.CreatedBy = input.CreatedBy

	if err := s.ingest(ctx, doc, input.Content, noProgress); err != nil {
		span.SetError(err)
		return nil, err
	}

	s.logger.Info("manual knowledge entry created",
		zap.String("document_id", doc.ID),
		zap.Int("chunks", doc.ChunkCount))
	return doc, nil
}

// IngestFile runs the full pipeline for one file: store raw bytes, extract, chunk, embed each
// chunk in order, then persist the document and its chunks in a single transaction.
func (s *KnowledgeService) IngestFile(ctx context.Context, input IngestFileInput, progress ProgressFunc) (*domain.KnowledgeDocument, error) {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.IngestFile", telemetry.SpanAttributes{
		FileName:  input.FileName,
		Operation: "ingest",
	})
	defer span.End()

	if progress == nil {
		progress = noProgress
	}
	if strings.TrimSpace(input.FileName) == "" {
		return nil, fmt.Errorf("%w: file name", domain.ErrMissingRequiredField)
	}

	stored := domain.StoredObject{MimeType: extract.MimeType(input.FileName)}
	if s.blobs != nil {
		progress("storing file")
		obj, err := s.blobs.Put(ctx, input.Data, input.FileName)
		if err != nil {
			err = domain.NewStoreError("store file "+input.FileName, err)
			span.SetError(err)
			return nil, err
		}
		stored = obj
	}

	doc, err := s.ingestStored(ctx, input, stored, progress)
	if err != nil {
		if stored.StoragePath != nil {
			s.removeBlob(ctx, *stored.StoragePath)
		}
		span.SetError(err)
		s.logger.Warn("file ingestion failed",
			zap.String("file_name", input.FileName),
			zap.Error(err))
		return nil, err
	}

	span.SetData("chunks", doc.ChunkCount)
	s.logger.Info("file ingested",
		zap.String("document_id", doc.ID),
		zap.String("file_name", input.FileName),
		zap.Int("chunks", doc.ChunkCount))
	return doc, nil
}

func (s *KnowledgeService) ingestStored(ctx context.Context, input IngestFileInput, stored domain.StoredObject, progress ProgressFunc) (*domain.KnowledgeDocument, error) {
	progress("extracting text")
	text, err := s.extractor.Extract(ctx, input.Data, input.FileName)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = TitleFromFileName(input.FileName)
	}
	description := strings.TrimSpace(input.Description)
	if description == "" {
		description = ImportDescription(input.FileName, stored.MimeType)
	}

	now := s.now()
	doc := domain.NewKnowledgeDocument(s.uuidGen.NewString(), title, description, domain.SourceTypeFile, now)
	doc.FileName = input.FileName
	doc.MimeType = stored.MimeType
	doc.StoragePath = stored.StoragePath
	doc.CreatedBy = input.CreatedBy
	doc.Metadata["imported_at"] = now.Format(time.RFC3339)

	if err := s.ingest(ctx, doc, text, progress); err != nil {
		if errors.Is(err, domain.ErrNoContent) {
			return nil, domain.NewExtractionError(input.FileName, domain.ErrNoContent)
		}
		return nil, err
	}
	return doc, nil
}

// ingest chunks and embeds text, then writes doc and its chunks atomically. doc.ChunkCount is set
// on success.
func (s *KnowledgeService) ingest(ctx context.Context, doc *domain.KnowledgeDocument, text string, progress ProgressFunc) error {
	if err := domain.ValidateKnowledgeDocument(doc); err != nil {
		return domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid knowledge document", err)
	}

	progress("chunking and embedding")
	contents, err := ChunkText(text, s.chunkCfg)
	if err != nil {
		return err
	}
	if len(contents) == 0 {
		return domain.ErrNoContent
	}

	chunks, err := embedChunks(ctx, s.embedder, doc, contents, s.dimensions, s.uuidGen.NewString, progress)
	if err != nil {
		return err
	}

	progress("saving document")
	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return domain.NewStoreError("create knowledge document", err)
		}
		return repos.Chunks().AppendChunks(ctx, doc.ID, chunks)
	})
	if err != nil {
		if domain.ErrorCode(err) == "" {
			err = domain.NewStoreError("save knowledge document", err)
		}
		return err
	}

	doc.ChunkCount = len(chunks)
	return nil
}

// ListDocuments returns every document newest first with its chunk count
func (s *KnowledgeService) ListDocuments(ctx context.Context) ([]*domain.KnowledgeDocument, error) {
	docs, err := s.docs.ListWithChunkCount(ctx)
	if err != nil {
		return nil, domain.NewStoreError("list knowledge documents", err)
	}
	return docs, nil
}

// GetDocument returns a single document with its chunk count
func (s *KnowledgeService) GetDocument(ctx context.Context, id string) (*domain.KnowledgeDocument, error) {
	return s.docs.GetByID(ctx, id)
}

// ListChunks returns a document's chunks in index order
func (s *KnowledgeService) ListChunks(ctx context.Context, documentID string) ([]domain.KnowledgeChunk, error) {
	if _, err := s.docs.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	chunks, err := s.chunks.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, domain.NewStoreError("list knowledge chunks", err)
	}
	return chunks, nil
}

// DeleteDocument removes the document row (chunks cascade) and then best-effort removes the
// retained binary. A blob failure is logged and reported, never returned.
func (s *KnowledgeService) DeleteDocument(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "KnowledgeService.DeleteDocument", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, id); err != nil {
		if domain.ErrorCode(err) == "" {
			err = domain.NewStoreError("delete knowledge document", err)
		}
		span.SetError(err)
		return err
	}

	if doc.HasStoredFile() {
		s.removeBlob(ctx, *doc.StoragePath)
	}

	s.logger.Info("knowledge document deleted", zap.String("document_id", id))
	return nil
}

func (s *KnowledgeService) removeBlob(ctx context.Context, storagePath string) {
	if s.blobs == nil {
		return
	}
	if err := s.blobs.Delete(ctx, storagePath); err != nil {
		s.logger.Warn("failed to remove stored file",
			zap.String("storage_path", storagePath),
			zap.Error(err))
		telemetry.CaptureError(ctx, err)
	}
}

// FileURL returns a temporary link to the retained binary of a file document.
func (s *KnowledgeService) FileURL(ctx context.Context, id string) (string, error) {
	doc, err := s.docs.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	linker, ok := s.blobs.(FileLinker)
	if !ok || !doc.HasStoredFile() {
		return "", domain.ErrFileNotRetained
	}
	url, err := linker.DownloadURL(ctx, *doc.StoragePath)
	if err != nil {
		return "", domain.NewStoreError("sign download url", err)
	}
	return url, nil
}

// IngestUpload adapts IngestFile to the upload queue's processor contract.
func (s *KnowledgeService) IngestUpload(ctx context.Context, fileName string, data []byte, progress func(string)) (string, error) {
	doc, err := s.IngestFile(ctx, IngestFileInput{FileName: fileName, Data: data}, progress)
	if err != nil {
		return "", err
	}
	return doc.ID, nil
}

// TitleFromFileName strips the directory and final extension from fileName.
func TitleFromFileName(fileName string) string {
	base := filepath.Base(fileName)
	title := strings.TrimSuffix(base, filepath.Ext(base))
	if strings.TrimSpace(title) == "" {
		return base
	}
	return title
}

// ImportDescription is the default description for uploaded files.
func ImportDescription(fileName, mimeType string) string {
	if mimeType == "" {
		mimeType = "unknown"
	}
	return fmt.Sprintf("Imported from %s (%s)", filepath.Base(fileName), mimeType)
}
