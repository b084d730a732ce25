package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/FocuswithJustin/PaathGuide/core/errors"
	"github.com/FocuswithJustin/PaathGuide/core/normalize"
	"github.com/FocuswithJustin/PaathGuide/core/verse"
)

// SearchQuery describes an exact (FTS5) search with optional metadata filters.
type SearchQuery struct {
	Query  string
	Page   int    // 0 = no filter
	Raag   string // "" = no filter
	Author string // "" = no filter
	Limit  int
	Offset int
}

// Repository implements CRUD and exact search over the verses table.
type Repository struct {
	db *sql.DB
}

const recordColumns = `id, gurmukhi_text, page_number, line_number, transliteration, translation, raag, author, created_at`

// Create inserts a new verse and returns it with its assigned ID.
func (r *Repository) Create(ctx context.Context, rec verse.Record) (verse.Record, error) {
	if !rec.Ref().IsValid() {
		return verse.Record{}, errors.NewValidation("location", fmt.Sprintf("non-positive location %s", rec.Ref()))
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO verses (gurmukhi_text, page_number, line_number, transliteration, translation, raag, author, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Gurmukhi, rec.Page, rec.Line, rec.Transliteration, rec.Translation,
		rec.Raag, rec.Author, contentHash(rec), now.Format(time.RFC3339))
	if err != nil {
		if isUniqueViolation(err) {
			return verse.Record{}, errors.Wrapf(errors.ErrAlreadyExists, "location %s", rec.Ref())
		}
		return verse.Record{}, errors.Wrap(err, "failed to insert verse")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return verse.Record{}, errors.Wrap(err, "failed to read inserted ID")
	}
	rec.ID = id
	rec.CreatedAt = now
	return rec, nil
}

// GetByID returns the verse with the given identifier.
func (r *Repository) GetByID(ctx context.Context, id int64) (verse.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM verses WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return verse.Record{}, errors.NewNotFound("verse", fmt.Sprintf("%d", id))
	}
	return rec, err
}

// GetByRef returns the verse at the given (page, line) location.
func (r *Repository) GetByRef(ctx context.Context, page, line int) (verse.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM verses WHERE page_number = ? AND line_number = ?`, page, line)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		ref := verse.Ref{Page: page, Line: line}
		return verse.Record{}, errors.NewNotFound("verse", ref.String())
	}
	return rec, err
}

// List returns verses in canonical order with pagination.
func (r *Repository) List(ctx context.Context, skip, limit int) ([]verse.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM verses ORDER BY page_number, line_number LIMIT ? OFFSET ?`,
		limit, skip)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list verses")
	}
	return collectRecords(rows)
}

// All returns the entire corpus in canonical order, used to rebuild the
// in-memory snapshot at startup and after bulk loads.
func (r *Repository) All(ctx context.Context) ([]verse.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM verses ORDER BY page_number, line_number`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read corpus")
	}
	return collectRecords(rows)
}

// Search runs an FTS5 match with optional metadata filters and returns
// the matching verses plus the unpaginated total.
func (r *Repository) Search(ctx context.Context, q SearchQuery) ([]verse.Record, int, error) {
	match := ftsMatchExpr(q.Query)
	if match == "" {
		return r.searchByFilters(ctx, q)
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	where := `verses_fts MATCH ?
		AND (? = 0 OR v.page_number = ?)
		AND (? = '' OR v.raag = ?)
		AND (? = '' OR v.author = ?)`
	args := []any{match, q.Page, q.Page, q.Raag, q.Raag, q.Author, q.Author}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+prefixColumns("v")+`
		FROM verses v JOIN verses_fts ON v.id = verses_fts.rowid
		WHERE `+where+`
		ORDER BY rank
		LIMIT ? OFFSET ?`, append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "full-text search failed")
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}

	var total int
	err = r.db.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM verses v JOIN verses_fts ON v.id = verses_fts.rowid
		WHERE `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, errors.Wrap(err, "full-text count failed")
	}
	return recs, total, nil
}

// searchByFilters handles queries with no text expression.
func (r *Repository) searchByFilters(ctx context.Context, q SearchQuery) ([]verse.Record, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	where := `(? = 0 OR page_number = ?) AND (? = '' OR raag = ?) AND (? = '' OR author = ?)`
	args := []any{q.Page, q.Page, q.Raag, q.Raag, q.Author, q.Author}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+recordColumns+` FROM verses WHERE `+where+`
		ORDER BY page_number, line_number LIMIT ? OFFSET ?`, append(args, limit, q.Offset)...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "filtered search failed")
	}
	recs, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	var total int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verses WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "filtered count failed")
	}
	return recs, total, nil
}

// Update replaces the stored fields of an existing verse.
func (r *Repository) Update(ctx context.Context, rec verse.Record) error {
	if !rec.Ref().IsValid() {
		return errors.NewValidation("location", fmt.Sprintf("non-positive location %s", rec.Ref()))
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE verses
		SET gurmukhi_text = ?, page_number = ?, line_number = ?, transliteration = ?,
		    translation = ?, raag = ?, author = ?, content_hash = ?
		WHERE id = ?`,
		rec.Gurmukhi, rec.Page, rec.Line, rec.Transliteration, rec.Translation,
		rec.Raag, rec.Author, contentHash(rec), rec.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return errors.Wrapf(errors.ErrAlreadyExists, "location %s", rec.Ref())
		}
		return errors.Wrap(err, "failed to update verse")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.NewNotFound("verse", fmt.Sprintf("%d", rec.ID))
	}
	return nil
}

// Delete removes a verse by ID.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM verses WHERE id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete verse")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read affected rows")
	}
	if n == 0 {
		return errors.NewNotFound("verse", fmt.Sprintf("%d", id))
	}
	return nil
}

// Random returns a uniformly chosen verse.
func (r *Repository) Random(ctx context.Context) (verse.Record, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM verses ORDER BY RANDOM() LIMIT 1`)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return verse.Record{}, errors.NewNotFound("verse", "")
	}
	return rec, err
}

// ExistsByHash reports whether a verse with the given content hash is
// already stored, used for duplicate detection during incremental loads.
func (r *Repository) ExistsByHash(ctx context.Context, hash string) (bool, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM verses WHERE content_hash = ?`, hash).Scan(&n)
	if err != nil {
		return false, errors.Wrap(err, "failed to check content hash")
	}
	return n > 0, nil
}

// BulkInsert stores many verses in one transaction. Location conflicts
// abort the whole batch so a partial load never reaches the corpus.
func (r *Repository) BulkInsert(ctx context.Context, recs []verse.Record) error {
	return r.bulkWrite(ctx, recs, false)
}

// ReplaceAll clears the table and stores the given verses in one
// transaction. A failed or cancelled load rolls back to the previous
// contents instead of leaving the store empty.
func (r *Repository) ReplaceAll(ctx context.Context, recs []verse.Record) error {
	return r.bulkWrite(ctx, recs, true)
}

func (r *Repository) bulkWrite(ctx context.Context, recs []verse.Record, clear bool) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin bulk insert")
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, `DELETE FROM verses`); err != nil {
			return errors.Wrap(err, "failed to clear verses")
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO verses (gurmukhi_text, page_number, line_number, transliteration, translation, raag, author, content_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare bulk insert")
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, rec := range recs {
		if _, err := stmt.ExecContext(ctx,
			rec.Gurmukhi, rec.Page, rec.Line, rec.Transliteration, rec.Translation,
			rec.Raag, rec.Author, contentHash(rec), now); err != nil {
			if isUniqueViolation(err) {
				return errors.Wrapf(errors.ErrAlreadyExists, "location %s", rec.Ref())
			}
			return errors.Wrapf(err, "failed to insert verse at %s", rec.Ref())
		}
	}
	return tx.Commit()
}

// Clear removes every verse.
func (r *Repository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM verses`); err != nil {
		return errors.Wrap(err, "failed to clear verses")
	}
	return nil
}

// Count returns the number of stored verses.
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM verses`).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "failed to count verses")
	}
	return n, nil
}

// contentHash derives the duplicate-detection hash for a record.
func contentHash(rec verse.Record) string {
	return verse.ContentHash(normalize.Normalize(rec.Gurmukhi))
}

// ftsMatchExpr turns free text into a safe FTS5 match expression by
// quoting each token. Returns "" when the query has no tokens.
func ftsMatchExpr(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	quoted := make([]string, len(fields))
	for i, f := range fields {
		quoted[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(quoted, " ")
}

// isUniqueViolation detects UNIQUE constraint failures from either driver.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func prefixColumns(alias string) string {
	cols := strings.Split(recordColumns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (verse.Record, error) {
	var rec verse.Record
	var createdAt string
	err := row.Scan(&rec.ID, &rec.Gurmukhi, &rec.Page, &rec.Line,
		&rec.Transliteration, &rec.Translation, &rec.Raag, &rec.Author, &createdAt)
	if err != nil {
		return verse.Record{}, err
	}
	if t, perr := time.Parse(time.RFC3339, createdAt); perr == nil {
		rec.CreatedAt = t
	}
	return rec, nil
}

func collectRecords(rows *sql.Rows) ([]verse.Record, error) {
	defer rows.Close()
	var out []verse.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan verse")
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "row iteration failed")
	}
	return out, nil
}
