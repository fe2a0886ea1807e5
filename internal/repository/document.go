package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cloo-solutions/crmkb/internal/domain"
)

// DocumentRepository persists knowledge documents.
type DocumentRepository struct {
	db dbtx
}

func NewDocumentRepository(pool *pgxpool.Pool) *DocumentRepository {
	return &DocumentRepository{db: pool}
}

func NewDocumentRepositoryWithTx(tx pgx.Tx) *DocumentRepository {
	return &DocumentRepository{db: tx}
}

func (r *DocumentRepository) Create(ctx context.Context, d *domain.KnowledgeDocument) error {
	metadata := d.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.db.Exec(ctx,
		`INSERT INTO knowledge_documents
			(id, title, description, source_type, file_name, mime_type, storage_path, metadata, created_by, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		d.ID, d.Title, d.Description, d.SourceType,
		nullableString(d.FileName), nullableString(d.MimeType), d.StoragePath,
		metadata, nullableString(d.CreatedBy), d.CreatedAt,
	)
	return err
}

const documentColumns = `d.id, d.title, d.description, d.source_type, d.file_name, d.mime_type, d.storage_path,
	d.metadata, d.created_by, d.created_at,
	(SELECT COUNT(*) FROM knowledge_chunks c WHERE c.document_id = d.id) AS chunk_count`

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.KnowledgeDocument, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+documentColumns+`
		 FROM knowledge_documents d WHERE d.id = $1`,
		id,
	)
	d, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isMalformedID(err) {
			return nil, domain.ErrDocumentNotFound
		}
		return nil, err
	}
	return d, nil
}

// ListWithChunkCount returns all documents newest first, each with its computed chunk count.
func (r *DocumentRepository) ListWithChunkCount(ctx context.Context) ([]*domain.KnowledgeDocument, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+documentColumns+`
		 FROM knowledge_documents d
		 ORDER BY d.created_at DESC, d.id DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []*domain.KnowledgeDocument
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, d)
	}
	return results, rows.Err()
}

// Delete removes the document; its chunks go with it through ON DELETE CASCADE.
func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	cmdTag, err := r.db.Exec(ctx, `DELETE FROM knowledge_documents WHERE id = $1`, id)
	if err != nil {
		if isMalformedID(err) {
			return domain.ErrDocumentNotFound
		}
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}
	return nil
}

func scanDocument(row pgx.Row) (*domain.KnowledgeDocument, error) {
	var d domain.KnowledgeDocument
	var fileName, mimeType, createdBy *string
	var chunkCount int64
	err := row.Scan(&d.ID, &d.Title, &d.Description, &d.SourceType, &fileName, &mimeType, &d.StoragePath,
		&d.Metadata, &createdBy, &d.CreatedAt, &chunkCount)
	if err != nil {
		return nil, err
	}
	d.FileName = derefString(fileName)
	d.MimeType = derefString(mimeType)
	d.CreatedBy = derefString(createdBy)
	d.ChunkCount = int(chunkCount)
	if d.Metadata == nil {
		d.Metadata = map[string]any{}
	}
	return &d, nil
}
