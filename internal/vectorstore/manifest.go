package vectorstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// CollectionInfo is the manifest row of one repository.
type CollectionInfo struct {
	Repo         string    `json:"repo_name"`
	Collection   string    `json:"collection"`
	EmbeddingDim int       `json:"embedding_dim"`
	Provider     string    `json:"provider"`
	DocCount     int       `json:"doc_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// manifest records, per repository, the collection's embedding dimension,
// provider and document count in SQLite. Writes go through db, which has
// SQLite's single writer connection. Lookups go through reader so they are
// not queued behind a write transaction held open across an engine call.
type manifest struct {
	db     *sql.DB
	reader *sql.DB
}

// manifestReaders is the read connection pool size.
const manifestReaders = 4

const manifestSchema = `
CREATE TABLE IF NOT EXISTS collections (
	repo_name     TEXT PRIMARY KEY,
	collection    TEXT NOT NULL UNIQUE,
	embedding_dim INTEGER NOT NULL,
	provider      TEXT NOT NULL,
	doc_count     INTEGER NOT NULL DEFAULT 0,
	created_at    INTEGER NOT NULL,
	updated_at    INTEGER NOT NULL
);`

func openManifest(ctx context.Context, path string) (*manifest, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	if _, err := db.ExecContext(ctx, manifestSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing manifest schema: %w", err)
	}

	// WAL lets these read the last committed state while a write is open.
	reader, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=query_only(1)")
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("opening manifest reader: %w", err)
	}
	reader.SetMaxOpenConns(manifestReaders)
	reader.SetMaxIdleConns(manifestReaders)
	if err := reader.PingContext(ctx); err != nil {
		_ = reader.Close()
		_ = db.Close()
		return nil, fmt.Errorf("opening manifest reader: %w", err)
	}
	return &manifest{db: db, reader: reader}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInfo(row rowScanner) (*CollectionInfo, error) {
	var (
		info             CollectionInfo
		created, updated int64
	)
	err := row.Scan(&info.Repo, &info.Collection, &info.EmbeddingDim, &info.Provider,
		&info.DocCount, &created, &updated)
	if err != nil {
		return nil, err
	}
	info.CreatedAt = time.Unix(0, created).UTC()
	info.UpdatedAt = time.Unix(0, updated).UTC()
	return &info, nil
}

const selectColumns = `SELECT repo_name, collection, embedding_dim, provider, doc_count, created_at, updated_at FROM collections`

// get returns the row for repo, or ErrCollectionNotFound.
func (m *manifest) get(ctx context.Context, repo string) (*CollectionInfo, error) {
	info, err := scanInfo(m.reader.QueryRowContext(ctx, selectColumns+` WHERE repo_name = ?`, repo))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrCollectionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest for %s: %w", repo, err)
	}
	return info, nil
}

func (m *manifest) list(ctx context.Context) ([]CollectionInfo, error) {
	rows, err := m.reader.QueryContext(ctx, selectColumns+` ORDER BY repo_name`)
	if err != nil {
		return nil, fmt.Errorf("listing manifest: %w", err)
	}
	defer rows.Close()

	var out []CollectionInfo
	for rows.Next() {
		info, err := scanInfo(rows)
		if err != nil {
			return nil, fmt.Errorf("listing manifest: %w", err)
		}
		out = append(out, *info)
	}
	return out, rows.Err()
}

// writeBatch runs one checked write. Inside a transaction it reads the row,
// rejects a dimension or provider that disagrees with it, calls add, then
// records the new document count. Nothing is committed if add fails.
func (m *manifest) writeBatch(ctx context.Context, repo, collection, provider string, dim int, add func(ctx context.Context) (int, error)) (*CollectionInfo, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting manifest transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	info, err := scanInfo(tx.QueryRowContext(ctx, selectColumns+` WHERE repo_name = ?`, repo))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		info = &CollectionInfo{
			Repo:         repo,
			Collection:   collection,
			EmbeddingDim: dim,
			Provider:     provider,
			CreatedAt:    now,
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO collections (repo_name, collection, embedding_dim, provider, doc_count, created_at, updated_at)
			 VALUES (?, ?, ?, ?, 0, ?, ?)`,
			repo, collection, dim, provider, now.UnixNano(), now.UnixNano())
		if err != nil {
			return nil, fmt.Errorf("recording collection %s: %w", collection, err)
		}
	case err != nil:
		return nil, fmt.Errorf("reading manifest for %s: %w", repo, err)
	default:
		if info.EmbeddingDim != dim {
			return nil, &DimensionError{Repo: repo, Stored: info.EmbeddingDim, Got: dim}
		}
		switch info.Provider {
		case provider:
		case "":
			// Reserved by GetCollection; the first write fixes the provider.
			if _, err := tx.ExecContext(ctx,
				`UPDATE collections SET provider = ? WHERE repo_name = ?`, provider, repo); err != nil {
				return nil, fmt.Errorf("recording provider for %s: %w", repo, err)
			}
			info.Provider = provider
		default:
			return nil, fmt.Errorf("%w for %s: collection built with %q, got %q",
				ErrProviderMismatch, repo, info.Provider, provider)
		}
	}

	count, err := add(ctx)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE collections SET doc_count = ?, updated_at = ? WHERE repo_name = ?`,
		count, now.UnixNano(), repo); err != nil {
		return nil, fmt.Errorf("updating manifest for %s: %w", repo, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing manifest for %s: %w", repo, err)
	}

	info.DocCount = count
	info.UpdatedAt = now
	return info, nil
}

// reserve records repo with dim and no provider if it has no row yet,
// and returns the current row.
func (m *manifest) reserve(ctx context.Context, repo, collection string, dim int) (*CollectionInfo, error) {
	now := time.Now().UTC().UnixNano()
	_, err := m.db.ExecContext(ctx,
		`INSERT INTO collections (repo_name, collection, embedding_dim, provider, doc_count, created_at, updated_at)
		 VALUES (?, ?, ?, '', 0, ?, ?)
		 ON CONFLICT(repo_name) DO NOTHING`,
		repo, collection, dim, now, now)
	if err != nil {
		return nil, fmt.Errorf("recording collection %s: %w", collection, err)
	}
	return m.get(ctx, repo)
}

func (m *manifest) delete(ctx context.Context, repo string) error {
	if _, err := m.db.ExecContext(ctx, `DELETE FROM collections WHERE repo_name = ?`, repo); err != nil {
		return fmt.Errorf("deleting manifest row for %s: %w", repo, err)
	}
	return nil
}

// checkpoint folds the WAL into the database file.
func (m *manifest) checkpoint(ctx context.Context) error {
	if _, err := m.db.ExecContext(ctx, `PRAGMA wal_checkpoint(TRUNCATE)`); err != nil {
		return fmt.Errorf("checkpointing manifest: %w", err)
	}
	return nil
}

func (m *manifest) ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return err
	}
	return m.reader.PingContext(ctx)
}

func (m *manifest) close() error {
	return errors.Join(m.reader.Close(), m.db.Close())
}
