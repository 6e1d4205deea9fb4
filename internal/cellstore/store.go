// Package cellstore implements CellStore: key-value persistence of encoded
// patches and per-resolution manifests (spec.md §4.11), backed by SQLite.
package cellstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/MeKo-Tech/worldfusion/internal/codec"
	"github.com/MeKo-Tech/worldfusion/internal/types"
)

// Store is a SQLite-backed key-value store for patches and manifests. The
// CellStore and its manifest are the only process-wide mutable state; all
// updates are serialized per patch key.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
	mu     sync.Mutex
}

// Open opens (creating if absent) a CellStore database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cellstore: open database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = 50000",
		"PRAGMA temp_store = MEMORY",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("cellstore: set pragma %q: %w", p, err)
		}
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("cellstore: create schema: %w", err)
	}

	return &Store{db: db, path: path, logger: logger}, nil
}

func createSchema(db *sql.DB) error {
	schema := `
		CREATE TABLE IF NOT EXISTS patches (
			resolution     REAL NOT NULL,
			patch_id       TEXT NOT NULL,
			buffer         BLOB NOT NULL,
			name_table     BLOB,
			cell_count     INTEGER NOT NULL,
			format_version INTEGER NOT NULL,
			crc32          INTEGER NOT NULL,
			PRIMARY KEY (resolution, patch_id)
		);

		CREATE TABLE IF NOT EXISTS manifest (
			resolution  REAL NOT NULL,
			patch_id    TEXT NOT NULL,
			status      TEXT NOT NULL,
			phases      TEXT NOT NULL,
			cell_count  INTEGER NOT NULL,
			timestamp   INTEGER NOT NULL,
			retries     INTEGER NOT NULL,
			last_error  TEXT NOT NULL,
			PRIMARY KEY (resolution, patch_id)
		);
	`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

// PutPatch writes (or replaces) one patch's encoded buffer and name table.
func (s *Store) PutPatch(resolution float64, id types.PatchID, p *types.Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nameTable, err := json.Marshal(p.NameTable)
	if err != nil {
		return fmt.Errorf("cellstore: marshal name table: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO patches (resolution, patch_id, buffer, name_table, cell_count, format_version, crc32)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(resolution, patch_id) DO UPDATE SET
		   buffer=excluded.buffer, name_table=excluded.name_table,
		   cell_count=excluded.cell_count, format_version=excluded.format_version,
		   crc32=excluded.crc32`,
		resolution, id.String(), p.Buffer, nameTable, p.CellCount, p.FormatVersion, p.CRC32,
	)
	if err != nil {
		return fmt.Errorf("cellstore: put patch %s: %w", id, err)
	}
	return nil
}

// GetPatch reads one patch. CRC32 is recomputed on load; a mismatch is
// logged but the buffer is still returned (spec.md §4.11).
func (s *Store) GetPatch(resolution float64, id types.PatchID) (*types.Patch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		buffer        []byte
		nameTableRaw  []byte
		cellCount     int
		formatVersion uint8
		storedCRC     uint32
	)
	err := s.db.QueryRow(
		`SELECT buffer, name_table, cell_count, format_version, crc32
		 FROM patches WHERE resolution=? AND patch_id=?`,
		resolution, id.String(),
	).Scan(&buffer, &nameTableRaw, &cellCount, &formatVersion, &storedCRC)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cellstore: get patch %s: %w", id, err)
	}

	var nameTable []map[string]string
	if len(nameTableRaw) > 0 {
		if err := json.Unmarshal(nameTableRaw, &nameTable); err != nil {
			return nil, fmt.Errorf("cellstore: unmarshal name table for %s: %w", id, err)
		}
	}

	actual := codec.CRC32(buffer)
	if actual != storedCRC {
		s.log().Warn("cellstore: CRC32 mismatch on load",
			"resolution", resolution, "patch", id.String(),
			"stored", storedCRC, "actual", actual)
	}

	return &types.Patch{
		Resolution:    resolution,
		ID:            id,
		Buffer:        buffer,
		NameTable:     nameTable,
		CellCount:     cellCount,
		FormatVersion: formatVersion,
		CRC32:         storedCRC,
	}, nil
}

// PatchIDs returns every patch id stored for a resolution.
func (s *Store) PatchIDs(resolution float64) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT patch_id FROM patches WHERE resolution=?`, resolution)
	if err != nil {
		return nil, fmt.Errorf("cellstore: list patch ids: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// LoadManifest reads the full manifest for a resolution.
func (s *Store) LoadManifest(resolution float64) (*types.Manifest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT patch_id, status, phases, cell_count, timestamp, retries, last_error
		 FROM manifest WHERE resolution=?`, resolution)
	if err != nil {
		return nil, fmt.Errorf("cellstore: load manifest: %w", err)
	}
	defer rows.Close()

	m := types.NewManifest(resolution)
	for rows.Next() {
		var (
			patchID, status, phasesRaw, lastError string
			cellCount, retries                    int
			timestamp                             int64
		)
		if err := rows.Scan(&patchID, &status, &phasesRaw, &cellCount, &timestamp, &retries, &lastError); err != nil {
			return nil, fmt.Errorf("cellstore: scan manifest row: %w", err)
		}
		var phases []string
		if phasesRaw != "" {
			if err := json.Unmarshal([]byte(phasesRaw), &phases); err != nil {
				return nil, fmt.Errorf("cellstore: unmarshal phases for %s: %w", patchID, err)
			}
		}
		m.Entries[patchID] = &types.ManifestEntry{
			Status:    types.PatchStatus(status),
			Phases:    phases,
			CellCount: cellCount,
			Timestamp: timestamp,
			Retries:   retries,
			LastError: lastError,
		}
	}
	return m, rows.Err()
}

// UpdatePatchManifest performs a read-modify-write of the manifest's single
// entry for the given patch: it loads the current entry (or a fresh pending
// one), applies mutate, and writes the result back atomically.
func (s *Store) UpdatePatchManifest(resolution float64, id types.PatchID, mutate func(*types.ManifestEntry)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := &types.ManifestEntry{Status: types.PatchPending}
	var (
		status, phasesRaw, lastError string
		cellCount, retries           int
		timestamp                    int64
	)
	err := s.db.QueryRow(
		`SELECT status, phases, cell_count, timestamp, retries, last_error
		 FROM manifest WHERE resolution=? AND patch_id=?`,
		resolution, id.String(),
	).Scan(&status, &phasesRaw, &cellCount, &timestamp, &retries, &lastError)
	switch {
	case err == sql.ErrNoRows:
		// entry stays as the fresh pending default
	case err != nil:
		return fmt.Errorf("cellstore: read manifest entry %s: %w", id, err)
	default:
		var phases []string
		if phasesRaw != "" {
			if err := json.Unmarshal([]byte(phasesRaw), &phases); err != nil {
				return fmt.Errorf("cellstore: unmarshal phases for %s: %w", id, err)
			}
		}
		entry = &types.ManifestEntry{
			Status:    types.PatchStatus(status),
			Phases:    phases,
			CellCount: cellCount,
			Timestamp: timestamp,
			Retries:   retries,
			LastError: lastError,
		}
	}

	mutate(entry)
	if entry.Timestamp == 0 {
		entry.Timestamp = time.Now().Unix()
	}

	phasesJSON, err := json.Marshal(entry.Phases)
	if err != nil {
		return fmt.Errorf("cellstore: marshal phases: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO manifest (resolution, patch_id, status, phases, cell_count, timestamp, retries, last_error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(resolution, patch_id) DO UPDATE SET
		   status=excluded.status, phases=excluded.phases, cell_count=excluded.cell_count,
		   timestamp=excluded.timestamp, retries=excluded.retries, last_error=excluded.last_error`,
		resolution, id.String(), string(entry.Status), string(phasesJSON),
		entry.CellCount, entry.Timestamp, entry.Retries, entry.LastError,
	)
	if err != nil {
		return fmt.Errorf("cellstore: write manifest entry %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}
