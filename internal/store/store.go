package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"refmap/internal/graph"
	"refmap/internal/lsp"
	"refmap/util"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

const schemaVersion = 1

// Store is the SQLite query index over a swept graph. The JSON artifact
// remains the canonical sweep output; the store exists so tools can search
// symbols across files and count things without loading the whole graph.
type Store struct {
	db *sql.DB
}

// Symbol is one indexed symbol row together with its owning file and the
// number of references recorded for it.
type Symbol struct {
	ID       string
	FilePath string
	Entry    graph.SymbolEntry
	RefCount int
}

// Open opens (creating if needed) the store at path and migrates its schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store schema: %w", err)
	}
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS symbols (
		id TEXT PRIMARY KEY,
		file_path TEXT NOT NULL,
		symbol_path TEXT NOT NULL,
		kind INTEGER NOT NULL,
		start_line INTEGER NOT NULL,
		start_char INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		end_char INTEGER NOT NULL,
		sel_start_line INTEGER NOT NULL,
		sel_start_char INTEGER NOT NULL,
		sel_end_line INTEGER NOT NULL,
		sel_end_char INTEGER NOT NULL,
		UNIQUE (file_path, symbol_path)
	);

	CREATE TABLE IF NOT EXISTS symbol_refs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		symbol_id TEXT NOT NULL,
		file_path TEXT NOT NULL,
		start_line INTEGER NOT NULL,
		start_char INTEGER NOT NULL,
		end_line INTEGER NOT NULL,
		end_char INTEGER NOT NULL,
		snippet TEXT,
		FOREIGN KEY (symbol_id) REFERENCES symbols(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_path);
	CREATE INDEX IF NOT EXISTS idx_refs_symbol ON symbol_refs(symbol_id);
	CREATE INDEX IF NOT EXISTS idx_refs_file ON symbol_refs(file_path);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO meta (key, value) VALUES ('schema_version', ?)`,
		strconv.Itoa(schemaVersion))
	return err
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// ReplaceGraph replaces the entire index with the given graph in one
// transaction. Partial failure leaves the previous index intact.
func (s *Store) ReplaceGraph(ctx context.Context, g *graph.Graph) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM symbol_refs`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM symbols`); err != nil {
		return err
	}

	symStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbols
		(id, file_path, symbol_path, kind,
		 start_line, start_char, end_line, end_char,
		 sel_start_line, sel_start_char, sel_end_line, sel_end_char)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer symStmt.Close()

	refStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO symbol_refs
		(symbol_id, file_path, start_line, start_char, end_line, end_char, snippet)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer refStmt.Close()

	for filePath, entries := range g.Files {
		for symbolPath, entry := range entries {
			id := util.SymbolID(filePath, symbolPath)
			sym := entry.Symbol
			_, err := symStmt.ExecContext(ctx,
				id, filePath, symbolPath, sym.Kind,
				sym.Range.Start.Line, sym.Range.Start.Character,
				sym.Range.End.Line, sym.Range.End.Character,
				sym.SelectionRange.Start.Line, sym.SelectionRange.Start.Character,
				sym.SelectionRange.End.Line, sym.SelectionRange.End.Character)
			if err != nil {
				return fmt.Errorf("failed to insert symbol %s: %w", symbolPath, err)
			}

			for _, ref := range entry.References {
				_, err := refStmt.ExecContext(ctx,
					id, ref.FilePath,
					ref.Range.Start.Line, ref.Range.Start.Character,
					ref.Range.End.Line, ref.Range.End.Character,
					ref.Snippet)
				if err != nil {
					return fmt.Errorf("failed to insert reference for %s: %w", symbolPath, err)
				}
			}
		}
	}

	meta := map[string]string{
		"language":     g.Language,
		"generated_at": g.GeneratedAt.Format(time.RFC3339),
	}
	for key, value := range meta {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, key, value); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Language returns the language tag of the indexed graph.
func (s *Store) Language(ctx context.Context) (string, error) {
	var lang string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'language'`).Scan(&lang)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return lang, err
}

// GeneratedAt returns when the indexed graph was built.
func (s *Store) GeneratedAt(ctx context.Context) (time.Time, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = 'generated_at'`).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, raw)
}

// CountSymbols returns the number of indexed symbols.
func (s *Store) CountSymbols(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbols`).Scan(&n)
	return n, err
}

// CountReferences returns the number of indexed reference sites.
func (s *Store) CountReferences(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM symbol_refs`).Scan(&n)
	return n, err
}

// SymbolsInFile lists every symbol of one file in declaration order.
func (s *Store) SymbolsInFile(ctx context.Context, filePath string) ([]Symbol, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.file_path, s.symbol_path, s.kind,
		       s.start_line, s.start_char, s.end_line, s.end_char,
		       s.sel_start_line, s.sel_start_char, s.sel_end_line, s.sel_end_char,
		       COUNT(r.id)
		FROM symbols s
		LEFT JOIN symbol_refs r ON r.symbol_id = s.id
		WHERE s.file_path = ?
		GROUP BY s.id
		ORDER BY s.start_line, s.start_char, s.symbol_path
	`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// SearchSymbols finds symbols whose dotted path contains the query,
// case-insensitively, across all files.
func (s *Store) SearchSymbols(ctx context.Context, query string, limit int) ([]Symbol, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.file_path, s.symbol_path, s.kind,
		       s.start_line, s.start_char, s.end_line, s.end_char,
		       s.sel_start_line, s.sel_start_char, s.sel_end_line, s.sel_end_char,
		       COUNT(r.id)
		FROM symbols s
		LEFT JOIN symbol_refs r ON r.symbol_id = s.id
		WHERE s.symbol_path LIKE ?
		GROUP BY s.id
		ORDER BY s.file_path, s.symbol_path
		LIMIT ?
	`, "%"+query+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanSymbols(rows)
}

// ReferencesForFile returns each symbol's references for one file, keyed by
// dotted path. Symbols without references are absent from the map.
func (s *Store) ReferencesForFile(ctx context.Context, filePath string) (map[string][]graph.Reference, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.symbol_path, r.file_path,
		       r.start_line, r.start_char, r.end_line, r.end_char, r.snippet
		FROM symbol_refs r
		JOIN symbols s ON s.id = r.symbol_id
		WHERE s.file_path = ?
		ORDER BY s.symbol_path, r.file_path, r.start_line, r.start_char
	`, filePath)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string][]graph.Reference)
	for rows.Next() {
		var symbolPath string
		var ref graph.Reference
		err := rows.Scan(&symbolPath, &ref.FilePath,
			&ref.Range.Start.Line, &ref.Range.Start.Character,
			&ref.Range.End.Line, &ref.Range.End.Character,
			&ref.Snippet)
		if err != nil {
			return nil, err
		}
		out[symbolPath] = append(out[symbolPath], ref)
	}
	return out, rows.Err()
}

func scanSymbols(rows *sql.Rows) ([]Symbol, error) {
	var out []Symbol
	for rows.Next() {
		var sym Symbol
		var rng, sel lsp.Range
		err := rows.Scan(&sym.ID, &sym.FilePath, &sym.Entry.Path, &sym.Entry.Kind,
			&rng.Start.Line, &rng.Start.Character, &rng.End.Line, &rng.End.Character,
			&sel.Start.Line, &sel.Start.Character, &sel.End.Line, &sel.End.Character,
			&sym.RefCount)
		if err != nil {
			return nil, err
		}
		sym.Entry.Range = rng
		sym.Entry.SelectionRange = sel
		out = append(out, sym)
	}
	return out, rows.Err()
}
