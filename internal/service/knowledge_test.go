package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// MockDocumentRepository is a mock implementation of DocumentRepositoryInterface
type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Create(ctx context.Context, d *domain.KnowledgeDocument) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockDocumentRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeDocument, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.KnowledgeDocument), args.Error(1)
}

func (m *MockDocumentRepository) ListWithChunkCount(ctx context.Context) ([]*domain.KnowledgeDocument, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.KnowledgeDocument), args.Error(1)
}

func (m *MockDocumentRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// MockChunkRepository is a mock implementation of ChunkRepositoryInterface
type MockChunkRepository struct {
	mock.Mock
}

func (m *MockChunkRepository) AppendChunks(ctx context.Context, documentID string, chunks []domain.KnowledgeChunk) error {
	args := m.Called(ctx, documentID, chunks)
	return args.Error(0)
}

func (m *MockChunkRepository) ListByDocument(ctx context.Context, documentID string) ([]domain.KnowledgeChunk, error) {
	args := m.Called(ctx, documentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.KnowledgeChunk), args.Error(1)
}

// MockEmbeddingClient is a mock implementation of EmbeddingClient
type MockEmbeddingClient struct {
	mock.Mock
}

func (m *MockEmbeddingClient) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

// MockExtractor is a mock implementation of TextExtractor
type MockExtractor struct {
	mock.Mock
}

func (m *MockExtractor) Extract(ctx context.Context, data []byte, fileName string) (string, error) {
	args := m.Called(ctx, data, fileName)
	return args.String(0), args.Error(1)
}

// MockBlobStore is a mock implementation of BlobStore
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, data []byte, fileName string) (domain.StoredObject, error) {
	args := m.Called(ctx, data, fileName)
	return args.Get(0).(domain.StoredObject), args.Error(1)
}

func (m *MockBlobStore) Delete(ctx context.Context, storagePath string) error {
	args := m.Called(ctx, storagePath)
	return args.Error(0)
}

type sequentialUUIDGen struct {
	n int
}

func (g *sequentialUUIDGen) NewString() string {
	g.n++
	return fmt.Sprintf("id-%d", g.n)
}

const testDims = 4

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type knowledgeFixture struct {
	docs      *MockDocumentRepository
	chunks    *MockChunkRepository
	embedder  *MockEmbeddingClient
	extractor *MockExtractor
	blobs     *MockBlobStore
	tx        *testTxRunner
	svc       *KnowledgeService
}

func newKnowledgeFixture(withBlobs bool) *knowledgeFixture {
	f := &knowledgeFixture{
		docs:      new(MockDocumentRepository),
		chunks:    new(MockChunkRepository),
		embedder:  new(MockEmbeddingClient),
		extractor: new(MockExtractor),
		blobs:     new(MockBlobStore),
	}
	f.tx = &testTxRunner{repos: &testTxRepos{documents: f.docs, chunks: f.chunks}}

	deps := KnowledgeDeps{
		Documents:   f.docs,
		Chunks:      f.chunks,
		TxRunner:    f.tx,
		Extractor:   f.extractor,
		Embedder:    f.embedder,
		UUIDGen:     &sequentialUUIDGen{},
		Clock:       func() time.Time { return fixedNow },
		ChunkConfig: ChunkConfig{Size: 10, Overlap: 2},
		Dimensions:  testDims,
	}
	if withBlobs {
		deps.Blobs = f.blobs
	}
	f.svc = NewKnowledgeService(deps)
	return f
}

func vec(v float32) []float32 {
	return []float32{v, v, v, v}
}

func TestKnowledgeService_CreateManualEntry_SingleChunkRoundTrip(t *testing.T) {
	f := newKnowledgeFixture(false)
	ctx := context.Background()

	f.embedder.On("GenerateEmbedding", mock.Anything, "hi there").Return(vec(0.1), nil).Once()
	f.docs.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.KnowledgeDocument) bool {
		return d.ID == "id-1" && d.SourceType == domain.SourceTypeManual && d.Title == "Greeting"
	})).Return(nil).Once()
	f.chunks.On("AppendChunks", mock.Anything, "id-1", mock.MatchedBy(func(chunks []domain.KnowledgeChunk) bool {
		return len(chunks) == 1 &&
			chunks[0].ChunkIndex == 0 &&
			chunks[0].Content == "hi there" &&
			chunks[0].Metadata.Source == domain.SourceTypeManual &&
			chunks[0].Metadata.Length == 8
	})).Return(nil).Once()

	doc, err := f.svc.CreateManualEntry(ctx, ManualEntryInput{Title: " Greeting ", Content: "  hi \n\n there  "})

	require.NoError(t, err)
	assert.Equal(t, "id-1", doc.ID)
	assert.Equal(t, 1, doc.ChunkCount)
	assert.Equal(t, fixedNow, doc.CreatedAt)
	assert.True(t, f.tx.committed)
	f.docs.AssertExpectations(t)
	f.chunks.AssertExpectations(t)
	f.embedder.AssertExpectations(t)
}

func TestKnowledgeService_CreateManualEntry_Validation(t *testing.T) {
	f := newKnowledgeFixture(false)

	_, err := f.svc.CreateManualEntry(context.Background(), ManualEntryInput{Title: "  ", Content: "x"})
	assert.ErrorIs(t, err, domain.ErrMissingRequiredField)

	_, err = f.svc.CreateManualEntry(context.Background(), ManualEntryInput{Title: "t", Content: " \n "})
	assert.ErrorIs(t, err, domain.ErrNoContent)

	assert.False(t, f.tx.called)
	f.embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
}

func TestKnowledgeService_IngestFile_DenseIndicesInOrder(t *testing.T) {
	f := newKnowledgeFixture(false)
	ctx := context.Background()
	data := []byte("raw")
	text := "abcdefghijklmnopqrstuvwxyz"

	f.extractor.On("Extract", mock.Anything, data, "Price List.csv").Return(text, nil).Once()

	var embedded []string
	f.embedder.On("GenerateEmbedding", mock.Anything, mock.AnythingOfType("string")).
		Run(func(args mock.Arguments) { embedded = append(embedded, args.String(1)) }).
		Return(vec(0.2), nil)

	var created *domain.KnowledgeDocument
	f.docs.On("Create", mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { created = args.Get(1).(*domain.KnowledgeDocument) }).
		Return(nil).Once()

	var stored []domain.KnowledgeChunk
	f.chunks.On("AppendChunks", mock.Anything, "id-1", mock.Anything).
		Run(func(args mock.Arguments) { stored = args.Get(2).([]domain.KnowledgeChunk) }).
		Return(nil).Once()

	var progress []string
	doc, err := f.svc.IngestFile(ctx, IngestFileInput{FileName: "Price List.csv", Data: data}, func(m string) {
		progress = append(progress, m)
	})

	require.NoError(t, err)
	require.NotNil(t, created)
	assert.Equal(t, "Price List", created.Title)
	assert.Equal(t, "Imported from Price List.csv (text/csv)", created.Description)
	assert.Equal(t, domain.SourceTypeFile, created.SourceType)
	assert.Equal(t, "text/csv", created.MimeType)
	assert.Nil(t, created.StoragePath)
	assert.Equal(t, fixedNow.Format(time.RFC3339), created.Metadata["imported_at"])

	expected, err := ChunkText(text, ChunkConfig{Size: 10, Overlap: 2})
	require.NoError(t, err)
	assert.Equal(t, expected, embedded)
	require.Len(t, stored, len(expected))
	for i, c := range stored {
		assert.Equal(t, i, c.ChunkIndex)
		assert.Equal(t, expected[i], c.Content)
		assert.Equal(t, "id-1", c.DocumentID)
		assert.Equal(t, "Price List.csv", c.Metadata.FileName)
	}
	assert.Equal(t, len(expected), doc.ChunkCount)
	assert.Contains(t, progress, "extracting text")
	assert.Contains(t, progress, "chunking and embedding")
	assert.Equal(t, "saving document", progress[len(progress)-1])
}

func TestKnowledgeService_IngestFile_DimensionMismatchPersistsNothing(t *testing.T) {
	f := newKnowledgeFixture(false)

	f.extractor.On("Extract", mock.Anything, mock.Anything, "notes.txt").Return("short text", nil).Once()
	f.embedder.On("GenerateEmbedding", mock.Anything, "short text").Return([]float32{1, 2, 3}, nil).Once()

	_, err := f.svc.IngestFile(context.Background(), IngestFileInput{FileName: "notes.txt", Data: []byte("x")}, nil)

	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.False(t, f.tx.called)
	f.docs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	f.chunks.AssertNotCalled(t, "AppendChunks", mock.Anything, mock.Anything, mock.Anything)
}

func TestKnowledgeService_IngestFile_EmbeddingFailureAbortsDocument(t *testing.T) {
	f := newKnowledgeFixture(false)

	f.extractor.On("Extract", mock.Anything, mock.Anything, "a.md").Return(strings.Repeat("x", 25), nil).Once()
	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(vec(1), nil).Once()
	f.embedder.On("GenerateEmbedding", mock.Anything, mock.Anything).Return(nil, errors.New("upstream down")).Once()

	_, err := f.svc.IngestFile(context.Background(), IngestFileInput{FileName: "a.md", Data: []byte("x")}, nil)

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeEmbedding, domain.ErrorCode(err))
	assert.Contains(t, err.Error(), "chunk 1")
	assert.False(t, f.tx.called)
}

func TestKnowledgeService_IngestFile_ChunkInsertFailureRollsBack(t *testing.T) {
	f := newKnowledgeFixture(false)

	f.extractor.On("Extract", mock.Anything, mock.Anything, "a.txt").Return("tiny", nil).Once()
	f.embedder.On("GenerateEmbedding", mock.Anything, "tiny").Return(vec(1), nil).Once()
	f.docs.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.chunks.On("AppendChunks", mock.Anything, "id-1", mock.Anything).
		Return(domain.NewStoreError("insert knowledge chunk 0", errors.New("conn reset"))).Once()

	_, err := f.svc.IngestFile(context.Background(), IngestFileInput{FileName: "a.txt", Data: []byte("x")}, nil)

	require.Error(t, err)
	assert.Equal(t, domain.ErrCodeStore, domain.ErrorCode(err))
	assert.True(t, f.tx.rolledBack)
	assert.False(t, f.tx.committed)
}

func TestKnowledgeService_IngestFile_ExtractionErrorSurfaced(t *testing.T) {
	f := newKnowledgeFixture(false)
	extractErr := domain.NewExtractionError("broken.pdf", errors.New("bad xref"))

	f.extractor.On("Extract", mock.Anything, mock.Anything, "broken.pdf").Return("", extractErr).Once()

	_, err := f.svc.IngestFile(context.Background(), IngestFileInput{FileName: "broken.pdf", Data: []byte("%PDF")}, nil)

	assert.Equal(t, domain.ErrCodeExtraction, domain.ErrorCode(err))
	assert.Contains(t, err.Error(), "broken.pdf")
	assert.False(t, f.tx.called)
}

func TestKnowledgeService_IngestFile_StoresAndCleansUpBlob(t *testing.T) {
	f := newKnowledgeFixture(true)
	path := "knowledge/abc/deck.pdf"
	data := []byte("%PDF-1.7")

	f.blobs.On("Put", mock.Anything, data, "deck.pdf").
		Return(domain.StoredObject{StoragePath: &path, MimeType: "application/pdf"}, nil).Once()
	f.extractor.On("Extract", mock.Anything, data, "deck.pdf").Return("slide text", nil).Once()
	f.embedder.On("GenerateEmbedding", mock.Anything, "slide text").Return(nil, errors.New("quota")).Once()
	f.blobs.On("Delete", mock.Anything, path).Return(nil).Once()

	_, err := f.svc.IngestFile(context.Background(), IngestFileInput{FileName: "deck.pdf", Data: data}, nil)

	require.Error(t, err)
	f.blobs.AssertExpectations(t)
}

func TestKnowledgeService_IngestFile_KeepsStoragePath(t *testing.T) {
	f := newKnowledgeFixture(true)
	path := "knowledge/abc/deck.pdf"

	f.blobs.On("Put", mock.Anything, mock.Anything, "deck.pdf").
		Return(domain.StoredObject{StoragePath: &path, MimeType: "application/pdf"}, nil).Once()
	f.extractor.On("Extract", mock.Anything, mock.Anything, "deck.pdf").Return("slide", nil).Once()
	f.embedder.On("GenerateEmbedding", mock.Anything, "slide").Return(vec(1), nil).Once()
	f.docs.On("Create", mock.Anything, mock.MatchedBy(func(d *domain.KnowledgeDocument) bool {
		return d.StoragePath != nil && *d.StoragePath == path
	})).Return(nil).Once()
	f.chunks.On("AppendChunks", mock.Anything, "id-1", mock.MatchedBy(func(chunks []domain.KnowledgeChunk) bool {
		return chunks[0].Metadata.StoragePath != nil && *chunks[0].Metadata.StoragePath == path
	})).Return(nil).Once()

	doc, err := f.svc.IngestFile(context.Background(), IngestFileInput{FileName: "deck.pdf", Data: []byte("x")}, nil)

	require.NoError(t, err)
	assert.True(t, doc.HasStoredFile())
	f.blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestKnowledgeService_DeleteDocument_BlobFailureIsNotFatal(t *testing.T) {
	f := newKnowledgeFixture(true)
	path := "knowledge/abc/deck.pdf"
	doc := &domain.KnowledgeDocument{ID: "doc-1", StoragePath: &path}

	f.docs.On("GetByID", mock.Anything, "doc-1").Return(doc, nil).Once()
	f.docs.On("Delete", mock.Anything, "doc-1").Return(nil).Once()
	f.blobs.On("Delete", mock.Anything, path).Return(errors.New("access denied")).Once()

	err := f.svc.DeleteDocument(context.Background(), "doc-1")

	assert.NoError(t, err)
	f.docs.AssertExpectations(t)
	f.blobs.AssertExpectations(t)
}

func TestKnowledgeService_DeleteDocument_NotFound(t *testing.T) {
	f := newKnowledgeFixture(true)

	f.docs.On("GetByID", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound).Once()

	err := f.svc.DeleteDocument(context.Background(), "missing")

	assert.ErrorIs(t, err, domain.ErrDocumentNotFound)
	f.docs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestKnowledgeService_DeleteDocument_RowFailureSkipsBlob(t *testing.T) {
	f := newKnowledgeFixture(true)
	path := "knowledge/abc/deck.pdf"

	f.docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.KnowledgeDocument{ID: "doc-1", StoragePath: &path}, nil).Once()
	f.docs.On("Delete", mock.Anything, "doc-1").Return(errors.New("deadlock")).Once()

	err := f.svc.DeleteDocument(context.Background(), "doc-1")

	assert.Equal(t, domain.ErrCodeStore, domain.ErrorCode(err))
	f.blobs.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestKnowledgeService_ListDocuments(t *testing.T) {
	f := newKnowledgeFixture(false)
	docs := []*domain.KnowledgeDocument{{ID: "b", ChunkCount: 3}, {ID: "a", ChunkCount: 1}}

	f.docs.On("ListWithChunkCount", mock.Anything).Return(docs, nil).Once()

	got, err := f.svc.ListDocuments(context.Background())

	require.NoError(t, err)
	assert.Equal(t, docs, got)
}

func TestKnowledgeService_IngestUpload(t *testing.T) {
	f := newKnowledgeFixture(false)

	f.extractor.On("Extract", mock.Anything, mock.Anything, "a.txt").Return("body", nil).Once()
	f.embedder.On("GenerateEmbedding", mock.Anything, "body").Return(vec(1), nil).Once()
	f.docs.On("Create", mock.Anything, mock.Anything).Return(nil).Once()
	f.chunks.On("AppendChunks", mock.Anything, "id-1", mock.Anything).Return(nil).Once()

	id, err := f.svc.IngestUpload(context.Background(), "a.txt", []byte("body"), func(string) {})

	require.NoError(t, err)
	assert.Equal(t, "id-1", id)
}

func TestTitleFromFileName(t *testing.T) {
	assert.Equal(t, "Q3 report", TitleFromFileName("Q3 report.pdf"))
	assert.Equal(t, "archive.tar", TitleFromFileName("archive.tar.gz"))
	assert.Equal(t, "README", TitleFromFileName("/tmp/drop/README"))
	assert.Equal(t, ".env", TitleFromFileName(".env"))
}

func TestImportDescription(t *testing.T) {
	assert.Equal(t, "Imported from a.pdf (application/pdf)", ImportDescription("a.pdf", "application/pdf"))
	assert.Equal(t, "Imported from blob (unknown)", ImportDescription("blob", ""))
}

func TestKnowledgeService_ListChunks(t *testing.T) {
	f := newKnowledgeFixture(false)
	chunks := []domain.KnowledgeChunk{{DocumentID: "doc-1", ChunkIndex: 0}, {DocumentID: "doc-1", ChunkIndex: 1}}

	f.docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.KnowledgeDocument{ID: "doc-1"}, nil).Once()
	f.chunks.On("ListByDocument", mock.Anything, "doc-1").Return(chunks, nil).Once()

	got, err := f.svc.ListChunks(context.Background(), "doc-1")

	require.NoError(t, err)
	assert.Equal(t, chunks, got)
}

type linkingBlobStore struct {
	MockBlobStore
}

func (m *linkingBlobStore) DownloadURL(ctx context.Context, storagePath string) (string, error) {
	args := m.Called(ctx, storagePath)
	return args.String(0), args.Error(1)
}

func TestKnowledgeService_FileURL(t *testing.T) {
	path := "knowledge/abc/deck.pdf"
	docs := new(MockDocumentRepository)
	blobs := new(linkingBlobStore)
	svc := NewKnowledgeService(KnowledgeDeps{Documents: docs, Blobs: blobs, TxRunner: &testTxRunner{}, Embedder: new(MockEmbeddingClient)})

	docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.KnowledgeDocument{ID: "doc-1", StoragePath: &path}, nil).Once()
	blobs.On("DownloadURL", mock.Anything, path).Return("https://files.example/signed", nil).Once()

	url, err := svc.FileURL(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, "https://files.example/signed", url)

	docs.On("GetByID", mock.Anything, "manual").Return(&domain.KnowledgeDocument{ID: "manual"}, nil).Once()
	_, err = svc.FileURL(context.Background(), "manual")
	assert.ErrorIs(t, err, domain.ErrFileNotRetained)
}

func TestKnowledgeService_FileURL_StoreWithoutLinks(t *testing.T) {
	f := newKnowledgeFixture(true)
	path := "knowledge/abc/deck.pdf"

	f.docs.On("GetByID", mock.Anything, "doc-1").Return(&domain.KnowledgeDocument{ID: "doc-1", StoragePath: &path}, nil).Once()

	_, err := f.svc.FileURL(context.Background(), "doc-1")
	assert.ErrorIs(t, err, domain.ErrFileNotRetained)
}
