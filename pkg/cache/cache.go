package cache

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"groupon-scraper/pkg/models"
)

// Cache archives scraped deal records in SQLite so repeated requests
// for the same search do not hammer the upstream site. Rows expire by
// age; error-tagged records are never archived.
type Cache struct {
	db  *sql.DB
	ttl time.Duration
}

func New(dbPath string, ttl time.Duration) (*Cache, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS deals (
			url TEXT NOT NULL,
			postal_code TEXT NOT NULL,
			search_term TEXT NOT NULL,
			data TEXT NOT NULL,
			retrieved_at DATETIME NOT NULL,
			PRIMARY KEY (url, postal_code, search_term)
		)
	`)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Cache{db: db, ttl: ttl}, nil
}

// Get returns a fresh archived record for one deal URL under a given
// query, if present.
func (c *Cache) Get(url, term, postal string) (models.DealRecord, bool) {
	var data string
	var retrievedAt time.Time

	err := c.db.QueryRow(
		`SELECT data, retrieved_at FROM deals WHERE url = ? AND postal_code = ? AND search_term = ?`,
		url, postal, term,
	).Scan(&data, &retrievedAt)
	if err != nil {
		return models.DealRecord{}, false
	}

	if time.Since(retrievedAt) > c.ttl {
		return models.DealRecord{}, false
	}

	var rec models.DealRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		slog.Warn("cache: failed to unmarshal archived deal", "url", url, "err", err)
		return models.DealRecord{}, false
	}
	return rec, true
}

// GetQuery returns all fresh archived records for a (term, postal)
// query in the order they were first archived. ok is false when the
// archive has nothing fresh for the query.
func (c *Cache) GetQuery(term, postal string) ([]models.DealRecord, bool) {
	rows, err := c.db.Query(
		`SELECT data, retrieved_at FROM deals
		 WHERE postal_code = ? AND search_term = ?
		 ORDER BY rowid`,
		postal, term,
	)
	if err != nil {
		slog.Warn("cache: query failed", "postal_code", postal, "search_term", term, "err", err)
		return nil, false
	}
	defer rows.Close()

	var recs []models.DealRecord
	for rows.Next() {
		var data string
		var retrievedAt time.Time
		if err := rows.Scan(&data, &retrievedAt); err != nil {
			return nil, false
		}
		if time.Since(retrievedAt) > c.ttl {
			continue
		}
		var rec models.DealRecord
		if err := json.Unmarshal([]byte(data), &rec); err != nil {
			slog.Warn("cache: failed to unmarshal archived deal", "err", err)
			continue
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil || len(recs) == 0 {
		return nil, false
	}
	return recs, true
}

func (c *Cache) Set(rec models.DealRecord) {
	if rec.Error != "" {
		return
	}

	data, err := json.Marshal(rec)
	if err != nil {
		slog.Warn("cache: failed to marshal deal", "url", rec.URL, "err", err)
		return
	}

	_, err = c.db.Exec(
		`INSERT INTO deals (url, postal_code, search_term, data, retrieved_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url, postal_code, search_term)
		 DO UPDATE SET data = excluded.data, retrieved_at = excluded.retrieved_at`,
		rec.URL, rec.PostalCode, rec.SearchTerm, string(data), rec.RetrievedAt,
	)
	if err != nil {
		slog.Warn("cache: failed to archive deal", "url", rec.URL, "err", err)
	}
}

func (c *Cache) Close() error {
	return c.db.Close()
}
