//go:build e2e

package e2e

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"
	"unicode"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap/zaptest"

	"github.com/cloo-solutions/crmkb/internal/api/handlers"
	"github.com/cloo-solutions/crmkb/internal/domain"
	"github.com/cloo-solutions/crmkb/internal/extract"
	"github.com/cloo-solutions/crmkb/internal/jobs"
	"github.com/cloo-solutions/crmkb/internal/repository"
	"github.com/cloo-solutions/crmkb/internal/server"
	"github.com/cloo-solutions/crmkb/internal/service"
	"github.com/cloo-solutions/crmkb/internal/storage"
	"github.com/cloo-solutions/crmkb/internal/testutil"
)

const embeddingDims = 768

// E2ETestEnv holds all resources needed for E2E tests
type E2ETestEnv struct {
	T            *testing.T
	Ctx          context.Context
	PostgresC    *testutil.PostgresContainer
	RustFSC      *testutil.RustFSContainer
	Pool         *pgxpool.Pool
	S3Client     *storage.S3Client
	Queue        *jobs.UploadQueue
	ServerURL    string
	ServerCloser func()
	HTTPClient   *http.Client
}

// SetupE2EEnv creates a full E2E test environment with containers, the upload queue and the
// HTTP server. Embeddings come from a deterministic local embedder.
func SetupE2EEnv(t *testing.T) *E2ETestEnv {
	ctx := context.Background()

	pgC := testutil.NewPostgresContainer(ctx, t)
	s3C := testutil.NewRustFSContainer(ctx, t)
	pool := testutil.NewTestPool(ctx, t, pgC, "../../migrations")

	s3Client, err := storage.NewS3Client(ctx, storage.S3ClientConfig{
		Endpoint:        s3C.Endpoint(),
		Region:          "us-east-1",
		AccessKeyID:     testutil.RustFSAccessKey,
		SecretAccessKey: testutil.RustFSAccessKey,
		Bucket:          "kb-e2e",
		UsePathStyle:    true,
	})
	if err != nil {
		t.Fatalf("failed to create S3 client: %v", err)
	}
	if err := s3Client.EnsureBucket(ctx); err != nil {
		t.Fatalf("failed to create bucket: %v", err)
	}

	port, err := getFreePort()
	if err != nil {
		t.Fatalf("failed to get free port: %v", err)
	}

	env := &E2ETestEnv{
		T:          t,
		Ctx:        ctx,
		PostgresC:  pgC,
		RustFSC:    s3C,
		Pool:       pool,
		S3Client:   s3Client,
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
	}
	env.startServer(port)
	return env
}

// Cleanup releases all resources
func (e *E2ETestEnv) Cleanup() {
	if e.ServerCloser != nil {
		e.ServerCloser()
	}
	if e.Pool != nil {
		e.Pool.Close()
	}
	if e.RustFSC != nil {
		_ = e.RustFSC.Terminate(e.Ctx)
	}
	if e.PostgresC != nil {
		_ = e.PostgresC.Terminate(e.Ctx)
	}
}

func (e *E2ETestEnv) startServer(port int) {
	logger := zaptest.NewLogger(e.T)
	embedder := hashEmbedder{}

	knowledgeSvc := service.NewKnowledgeService(service.KnowledgeDeps{
		Documents:  repository.NewDocumentRepository(e.Pool),
		Chunks:     repository.NewKnowledgeChunkRepository(e.Pool),
		TxRunner:   repository.NewTxRunner(e.Pool),
		Extractor:  extract.NewRegistry(),
		Embedder:   embedder,
		Blobs:      e.S3Client,
		Logger:     logger,
		Dimensions: embeddingDims,
		ChunkConfig: service.ChunkConfig{
			Size:    200,
			Overlap: 20,
		},
	})
	searchSvc := service.NewSearchService(embedder, repository.NewMatchRepository(e.Pool), 5, logger)
	recordSvc := service.NewRecordEmbeddingService(repository.NewRecordEmbeddingRepository(e.Pool), embedder, embeddingDims, 0, logger)

	queueCtx, cancelQueue := context.WithCancel(e.Ctx)
	e.Queue = jobs.NewUploadQueue(knowledgeSvc, 16, jobs.WithQueueLogger(logger))
	go e.Queue.Start(queueCtx)

	router := server.NewRouter(server.RouterConfig{
		Logger:          logger,
		MaxUploadBytes:  1 << 20,
		DocumentHandler: handlers.NewDocumentHandler(knowledgeSvc),
		UploadHandler:   handlers.NewUploadHandler(e.Queue),
		SearchHandler:   handlers.NewSearchHandler(searchSvc),
		RecordHandler:   handlers.NewRecordHandler(recordSvc),
	})

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: router,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			e.T.Logf("server error: %v", err)
		}
	}()

	e.ServerURL = fmt.Sprintf("http://localhost:%d", port)
	waitForServer(e.T, e.ServerURL, 10*time.Second)

	e.ServerCloser = func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		e.Queue.Stop()
		cancelQueue()
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Status int
	Data   json.RawMessage `json:"data"`
	Error  string          `json:"error,omitempty"`
	Code   string          `json:"code,omitempty"`
}

// Decode unmarshals the data envelope into v.
func (r *APIResponse) Decode(v any) error {
	return json.Unmarshal(r.Data, v)
}

// Get performs a GET request
func (e *E2ETestEnv) Get(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodGet, path, nil)
}

// Post performs a POST request
func (e *E2ETestEnv) Post(path string, body any) (*APIResponse, error) {
	return e.doRequest(http.MethodPost, path, body)
}

// Delete performs a DELETE request
func (e *E2ETestEnv) Delete(path string) (*APIResponse, error) {
	return e.doRequest(http.MethodDelete, path, nil)
}

func (e *E2ETestEnv) doRequest(method, path string, body any) (*APIResponse, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequest(method, e.ServerURL+path, reqBody)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return e.do(req)
}

func (e *E2ETestEnv) do(req *http.Request) (*APIResponse, error) {
	resp, err := e.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	apiResp := &APIResponse{Status: resp.StatusCode}
	if len(respBody) > 0 {
		if err := json.Unmarshal(respBody, apiResp); err != nil {
			return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
		}
	}
	if resp.StatusCode >= 400 {
		return apiResp, fmt.Errorf("HTTP %d: %s (%s)", resp.StatusCode, apiResp.Error, apiResp.Code)
	}
	return apiResp, nil
}

// Upload posts files as a multipart form to /uploads.
func (e *E2ETestEnv) Upload(files map[string][]byte, order ...string) ([]domain.UploadItem, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, name := range order {
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			return nil, err
		}
		if _, err := part.Write(files[name]); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, e.ServerURL+"/uploads", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := e.do(req)
	if err != nil {
		return nil, err
	}
	var items []domain.UploadItem
	if err := resp.Decode(&items); err != nil {
		return nil, err
	}
	return items, nil
}

// WaitForUpload polls an upload item until it reaches success or error.
func (e *E2ETestEnv) WaitForUpload(id string, timeout time.Duration) domain.UploadItem {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := e.Get("/uploads/" + id)
		if err == nil {
			var item domain.UploadItem
			if err := resp.Decode(&item); err == nil && item.Status.IsTerminal() {
				return item
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	e.T.Fatalf("upload %s did not finish within %v", id, timeout)
	return domain.UploadItem{}
}

// FileLocation requests /documents/{id}/file without following the redirect.
func (e *E2ETestEnv) FileLocation(documentID string) (int, string, error) {
	client := &http.Client{
		Timeout: e.HTTPClient.Timeout,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	resp, err := client.Get(e.ServerURL + "/documents/" + documentID + "/file")
	if err != nil {
		return 0, "", err
	}
	defer resp.Body.Close()
	return resp.StatusCode, resp.Header.Get("Location"), nil
}

// DownloadFile downloads a file from the presigned URL
func (e *E2ETestEnv) DownloadFile(downloadURL string) ([]byte, error) {
	resp, err := e.HTTPClient.Get(downloadURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// SHA256Sum calculates SHA256 hash of data
func SHA256Sum(data []byte) string {
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:])
}

// hashEmbedder maps each lowercased word to a bucket and returns the normalised bag-of-words
// vector, so texts sharing words score higher than texts that do not.
type hashEmbedder struct{}

func (hashEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, embeddingDims)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(words) == 0 {
		vec[0] = 1
		return vec, nil
	}
	for _, w := range words {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		vec[h.Sum32()%embeddingDims]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec, nil
}

func waitForServer(t *testing.T, url string, timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := http.Get(url + "/health")
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server did not start within %v", timeout)
}

func getFreePort() (int, error) {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		return 0, err
	}

	l, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return 0, err
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port, nil
}
