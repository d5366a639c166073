package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stockbridge/stockbridge/internal/shared"
	"github.com/stockbridge/stockbridge/internal/validation"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps callback in a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, &txRepo{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const documentColumns = `id, number, doc_type, state, version, branch_id, branch_name,
	partner_code, partner_name, allow_duplicate_serials,
	COALESCE(remote_doc_entry, 0), COALESCE(remote_doc_num, ''),
	reject_reason, notes, created_by, created_at, updated_at`

// GetDocument returns one document with its lines and serials.
func (r *Repository) GetDocument(ctx context.Context, id int64) (Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Document{}, ErrNotFound
		}
		return Document{}, err
	}
	doc.Lines, err = r.loadLines(ctx, id)
	if err != nil {
		return Document{}, err
	}
	return doc, nil
}

func (r *Repository) loadLines(ctx context.Context, documentID int64) ([]LineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, document_id, line_number, item_code, item_description,
		quantity, warehouse_code, bin_code, serial_tracked
	FROM document_lines WHERE document_id = $1 ORDER BY line_number`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []LineItem
	byID := make(map[int64]int)
	for rows.Next() {
		var line LineItem
		if err := rows.Scan(&line.ID, &line.DocumentID, &line.LineNumber, &line.ItemCode,
			&line.ItemDescription, &line.Quantity, &line.WarehouseCode, &line.BinCode,
			&line.SerialTracked); err != nil {
			return nil, err
		}
		byID[line.ID] = len(lines)
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	serialRows, err := r.pool.Query(ctx, `SELECT s.id, s.line_id, s.value, s.status, s.source,
		COALESCE(s.item_code, ''), COALESCE(s.warehouse_code, ''), COALESCE(s.detail, '')
	FROM document_serials s
	JOIN document_lines l ON l.id = s.line_id
	WHERE l.document_id = $1 ORDER BY s.id`, documentID)
	if err != nil {
		return nil, err
	}
	defer serialRows.Close()

	for serialRows.Next() {
		var serial SerialNumber
		var status string
		if err := serialRows.Scan(&serial.ID, &serial.LineID, &serial.Value, &status,
			&serial.Source, &serial.ItemCode, &serial.WarehouseCode, &serial.Detail); err != nil {
			return nil, err
		}
		serial.Status = validation.Status(status)
		if idx, ok := byID[serial.LineID]; ok {
			lines[idx].Serials = append(lines[idx].Serials, serial)
		}
	}
	return lines, serialRows.Err()
}

// ListDocuments returns headers matching the filter plus the total count.
// Lines are not loaded for listings.
func (r *Repository) ListDocuments(ctx context.Context, filter ListFilter) ([]Document, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argNum := 1

	if filter.State != "" {
		where += ` AND state = $` + itoa(argNum)
		args = append(args, string(filter.State))
		argNum++
	}
	if filter.Type != "" {
		where += ` AND doc_type = $` + itoa(argNum)
		args = append(args, string(filter.Type))
		argNum++
	}
	if filter.Partner != "" {
		where += ` AND partner_code = $` + itoa(argNum)
		args = append(args, filter.Partner)
		argNum++
	}
	if filter.Search != "" {
		where += ` AND (number ILIKE $` + itoa(argNum) + ` OR partner_name ILIKE $` + itoa(argNum) + `)`
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}
	if !filter.From.IsZero() {
		where += ` AND created_at >= $` + itoa(argNum)
		args = append(args, filter.From)
		argNum++
	}
	if !filter.To.IsZero() {
		where += ` AND created_at < $` + itoa(argNum)
		args = append(args, filter.To)
		argNum++
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM documents`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	dataSQL := `SELECT ` + documentColumns + ` FROM documents` + where +
		` ORDER BY created_at DESC, id DESC LIMIT $` + itoa(argNum) + ` OFFSET $` + itoa(argNum+1)
	args = append(args, limit, (page-1)*limit)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, 0, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return docs, total, nil
}

func (tx *txRepo) InsertDocument(ctx context.Context, doc Document) (int64, error) {
	var id int64
	err := tx.tx.QueryRow(ctx, `INSERT INTO documents
		(number, doc_type, state, version, branch_id, branch_name, partner_code, partner_name,
		 allow_duplicate_serials, reject_reason, notes, created_by, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	RETURNING id`,
		doc.Number, string(doc.Type), string(doc.State), doc.Version, doc.BranchID, doc.BranchName,
		doc.PartnerCode, doc.PartnerName, doc.AllowDuplicateSerials, doc.RejectReason, doc.Notes,
		doc.CreatedBy, doc.CreatedAt, doc.UpdatedAt).Scan(&id)
	return id, err
}

// ReplaceLines rewrites all lines and serials of a document. Serials
// cascade on line delete.
func (tx *txRepo) ReplaceLines(ctx context.Context, documentID int64, lines []LineItem) error {
	if _, err := tx.tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, documentID); err != nil {
		return err
	}
	for _, line := range lines {
		var lineID int64
		err := tx.tx.QueryRow(ctx, `INSERT INTO document_lines
			(document_id, line_number, item_code, item_description, quantity, warehouse_code, bin_code, serial_tracked)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING id`,
			documentID, line.LineNumber, line.ItemCode, line.ItemDescription,
			line.Quantity, line.WarehouseCode, line.BinCode, line.SerialTracked).Scan(&lineID)
		if err != nil {
			return err
		}
		for _, serial := range line.Serials {
			_, err := tx.tx.Exec(ctx, `INSERT INTO document_serials
				(line_id, value, status, source, item_code, warehouse_code, detail)
			VALUES ($1,$2,$3,$4,$5,$6,$7)`,
				lineID, serial.Value, string(serial.Status), serial.Source,
				serial.ItemCode, serial.WarehouseCode, serial.Detail)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// UpdateDocument persists header fields conditionally on expectedVersion.
// Zero rows affected means another writer got there first.
func (tx *txRepo) UpdateDocument(ctx context.Context, doc Document, expectedVersion int64) error {
	tag, err := tx.tx.Exec(ctx, `UPDATE documents SET
		state = $1, version = $2, allow_duplicate_serials = $3,
		remote_doc_entry = NULLIF($4::bigint, 0), remote_doc_num = NULLIF($5, ''),
		reject_reason = $6, notes = $7, updated_at = $8
	WHERE id = $9 AND version = $10`,
		string(doc.State), doc.Version, doc.AllowDuplicateSerials,
		doc.RemoteDocEntry, doc.RemoteDocNum,
		doc.RejectReason, doc.Notes, doc.UpdatedAt,
		doc.ID, expectedVersion)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("documents: update of %d at version %d: %w", doc.ID, expectedVersion, shared.ErrStaleWrite)
	}
	return nil
}

func (tx *txRepo) UpdateSerial(ctx context.Context, serial SerialNumber) error {
	_, err := tx.tx.Exec(ctx, `UPDATE document_serials SET
		status = $1, item_code = $2, warehouse_code = $3, detail = $4
	WHERE id = $5`,
		string(serial.Status), serial.ItemCode, serial.WarehouseCode, serial.Detail, serial.ID)
	return err
}

// itoa converts int to string for dynamic query building.
func itoa(i int) string {
	return fmt.Sprintf("%d", i)
}

func scanDocument(row pgx.Row) (Document, error) {
	var doc Document
	var docType, state string
	err := row.Scan(&doc.ID, &doc.Number, &docType, &state, &doc.Version,
		&doc.BranchID, &doc.BranchName, &doc.PartnerCode, &doc.PartnerName,
		&doc.AllowDuplicateSerials, &doc.RemoteDocEntry, &doc.RemoteDocNum,
		&doc.RejectReason, &doc.Notes, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		return Document{}, err
	}
	doc.Type = DocumentType(docType)
	doc.State = State(state)
	return doc, nil
}
