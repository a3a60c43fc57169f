package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite"

	"flipflow/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS emails (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  provider TEXT NOT NULL,
  messageId TEXT NOT NULL,
  subject TEXT,
  sender TEXT,
  receivedAt TEXT,
  hash TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'fetched',
  rawRef TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  UNIQUE(provider, messageId)
);

CREATE TABLE IF NOT EXISTS orders (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  orderNumber TEXT NOT NULL,
  trackingNumber TEXT,
  carrier TEXT NOT NULL DEFAULT 'UNKNOWN',
  carrierPriority INTEGER NOT NULL DEFAULT 0,
  size TEXT,
  status TEXT NOT NULL DEFAULT 'NeedsReview',
  statusPriority INTEGER NOT NULL DEFAULT 0,
  failureReason TEXT,
  sourceEmailIds TEXT NOT NULL DEFAULT '[]',
  emailAt TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_orders_orderNumber ON orders(orderNumber);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);

CREATE TABLE IF NOT EXISTS market_products (
  productId TEXT PRIMARY KEY,
  styleId TEXT,
  title TEXT NOT NULL,
  brand TEXT,
  lowestAsk REAL,
  highestBid REAL,
  lastSale REAL,
  updatedAt TEXT,
  raw_json TEXT NOT NULL,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_market_styleId ON market_products(styleId);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailCount INTEGER NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertEmail(provider, messageID, subject, sender, receivedAt, hash, rawRef, status string) (internal.EmailRow, error) {
	_, err := d.conn.Exec(`
INSERT INTO emails (provider, messageId, subject, sender, receivedAt, hash, status, rawRef)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(provider, messageId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  receivedAt=excluded.receivedAt,
  hash=excluded.hash,
  rawRef=excluded.rawRef,
  updatedAt=CURRENT_TIMESTAMP
`, provider, messageID, subject, sender, receivedAt, hash, status, rawRef)
	if err != nil {
		return internal.EmailRow{}, err
	}

	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, errors.New("failed to upsert email")
	}
	return *row, nil
}

func (d *DB) GetEmailByProviderMessageID(provider, messageID string) (*internal.EmailRow, error) {
	var row internal.EmailRow
	err := d.conn.QueryRow(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE provider = ? AND messageId = ?
`, provider, messageID).Scan(
		&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (d *DB) MustEmailByProviderMessageID(provider, messageID string) (internal.EmailRow, error) {
	row, err := d.GetEmailByProviderMessageID(provider, messageID)
	if err != nil {
		return internal.EmailRow{}, err
	}
	if row == nil {
		return internal.EmailRow{}, fmt.Errorf("email not found: provider=%s messageId=%s", provider, messageID)
	}
	return *row, nil
}

func (d *DB) ListEmailsByStatus(status string, limit int) ([]internal.EmailRow, error) {
	rows, err := d.conn.Query(`
SELECT id, provider, messageId, subject, sender, receivedAt, hash, status, rawRef
FROM emails WHERE status = ? ORDER BY receivedAt ASC LIMIT ?
`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.EmailRow
	for rows.Next() {
		var row internal.EmailRow
		if err := rows.Scan(&row.ID, &row.Provider, &row.MessageID, &row.Subject, &row.Sender, &row.ReceivedAt, &row.Hash, &row.Status, &row.RawRef); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) UpdateEmailStatus(emailID int, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE id = ?`, status, emailID)
	return err
}

// UpsertOrders writes merged records keyed by order number. The write path
// re-applies the merge invariants against the stored row (defense in depth):
// status moves only to a strictly higher priority, tracking only to
// equal-or-better carrier confidence, size/failureReason only fill blanks.
func (d *DB) UpsertOrders(records []internal.OrderRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, rec := range records {
		existingID, existing, err := getOldestOrderTx(tx, rec.OrderNumber)
		if err != nil {
			return err
		}

		if existing == nil {
			sourcesJSON := marshalSources(rec.SourceEmailIDs)
			if _, err := tx.Exec(`
INSERT INTO orders (orderNumber, trackingNumber, carrier, carrierPriority, size, status, statusPriority, failureReason, sourceEmailIds, emailAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, rec.OrderNumber, rec.TrackingNumber, string(rec.Carrier), rec.CarrierPriority, rec.Size, string(rec.Status), rec.StatusPriority, rec.FailureReason, sourcesJSON, rec.LastUpdated.UTC().Format(time.RFC3339)); err != nil {
				return err
			}
			continue
		}

		merged := *existing
		if rec.StatusPriority > merged.StatusPriority {
			merged.Status = rec.Status
			merged.StatusPriority = rec.StatusPriority
		}
		if rec.TrackingNumber != nil && (merged.TrackingNumber == nil || rec.CarrierPriority <= merged.CarrierPriority) {
			merged.TrackingNumber = rec.TrackingNumber
			merged.Carrier = rec.Carrier
			merged.CarrierPriority = rec.CarrierPriority
		}
		if merged.Size == nil && rec.Size != nil {
			merged.Size = rec.Size
		}
		if merged.FailureReason == nil && rec.FailureReason != nil {
			merged.FailureReason = rec.FailureReason
		}
		for id := range rec.SourceEmailIDs {
			merged.SourceEmailIDs[id] = struct{}{}
		}
		if rec.LastUpdated.After(merged.LastUpdated) {
			merged.LastUpdated = rec.LastUpdated
		}

		if _, err := tx.Exec(`
UPDATE orders SET
  trackingNumber = ?, carrier = ?, carrierPriority = ?, size = ?,
  status = ?, statusPriority = ?, failureReason = ?, sourceEmailIds = ?,
  emailAt = ?, updatedAt = CURRENT_TIMESTAMP
WHERE id = ?
`, merged.TrackingNumber, string(merged.Carrier), merged.CarrierPriority, merged.Size,
			string(merged.Status), merged.StatusPriority, merged.FailureReason, marshalSources(merged.SourceEmailIDs),
			merged.LastUpdated.UTC().Format(time.RFC3339), existingID); err != nil {
			return err
		}

		// The merge can advance the survivor's emailAt past a stale
		// duplicate, which would hand the keep-oldest cleanup the wrong row.
		// Duplicates are exactly what DedupeOrders deletes; drop them here so
		// the merged write cannot be discarded by the next cleanup pass.
		if _, err := tx.Exec(`DELETE FROM orders WHERE orderNumber = ? AND id != ?`, rec.OrderNumber, existingID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// getOldestOrderTx returns the surviving row for an order number: oldest by
// email timestamp, lowest id on ties. Duplicate rows can disagree between
// insertion order and emailAt order, so merges must target this row by id —
// it is the one DedupeOrders will keep.
func getOldestOrderTx(tx *sql.Tx, orderNumber string) (int64, *internal.OrderRecord, error) {
	row := tx.QueryRow(`
SELECT id, orderNumber, trackingNumber, carrier, carrierPriority, size, status, statusPriority, failureReason, sourceEmailIds, emailAt
FROM orders WHERE orderNumber = ? ORDER BY emailAt ASC, id ASC LIMIT 1
`, orderNumber)
	return scanOrder(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (int64, *internal.OrderRecord, error) {
	var id int64
	var rec internal.OrderRecord
	var carrier, status, sourcesJSON, emailAt string
	err := row.Scan(&id, &rec.OrderNumber, &rec.TrackingNumber, &carrier, &rec.CarrierPriority, &rec.Size, &status, &rec.StatusPriority, &rec.FailureReason, &sourcesJSON, &emailAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	rec.Carrier = internal.Carrier(carrier)
	rec.Status = internal.OrderStatus(status)
	rec.SourceEmailIDs = unmarshalSources(sourcesJSON)
	if t, perr := time.Parse(time.RFC3339, emailAt); perr == nil {
		rec.LastUpdated = t
	}
	return id, &rec, nil
}

func (d *DB) ListOrders() ([]internal.OrderRecord, error) {
	rows, err := d.conn.Query(`
SELECT id, orderNumber, trackingNumber, carrier, carrierPriority, size, status, statusPriority, failureReason, sourceEmailIds, emailAt
FROM orders ORDER BY emailAt DESC, id ASC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.OrderRecord
	for rows.Next() {
		_, rec, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// DedupeOrders removes duplicate rows per order number left behind by buggy
// historical runs, keeping the oldest by email timestamp. Idempotent: a
// second pass deletes nothing.
func (d *DB) DedupeOrders() (int, error) {
	result, err := d.conn.Exec(`
DELETE FROM orders WHERE id NOT IN (
  SELECT id FROM orders o
  WHERE NOT EXISTS (
    SELECT 1 FROM orders older
    WHERE older.orderNumber = o.orderNumber
      AND (older.emailAt < o.emailAt OR (older.emailAt = o.emailAt AND older.id < o.id))
  )
)
`)
	if err != nil {
		return 0, err
	}
	deleted, err := result.RowsAffected()
	return int(deleted), err
}

func (d *DB) UpsertMarketProducts(products []internal.MarketProduct) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO market_products (productId, styleId, title, brand, lowestAsk, highestBid, lastSale, updatedAt, raw_json, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(productId) DO UPDATE SET
  styleId=excluded.styleId,
  title=excluded.title,
  brand=excluded.brand,
  lowestAsk=excluded.lowestAsk,
  highestBid=excluded.highestBid,
  lastSale=excluded.lastSale,
  updatedAt=excluded.updatedAt,
  raw_json=excluded.raw_json,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		if _, err := stmt.Exec(p.ProductID, p.StyleID, p.Title, p.Brand, p.LowestAsk, p.HighestBid, p.LastSale, p.UpdatedAt, p.RawJSON); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) InsertRun(traceID string, emailCount int, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailCount, timingsJson, countsJson) VALUES (?, ?, ?, ?)`, traceID, emailCount, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) GetExportRows() ([]internal.OrderExportRow, error) {
	rows, err := d.conn.Query(`
SELECT orderNumber, status, trackingNumber, carrier, size, failureReason, sourceEmailIds, emailAt, updatedAt
FROM orders
ORDER BY statusPriority DESC, emailAt DESC
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.OrderExportRow
	for rows.Next() {
		var row internal.OrderExportRow
		var sourcesJSON string
		if err := rows.Scan(&row.OrderNumber, &row.Status, &row.TrackingNumber, &row.Carrier, &row.Size, &row.FailureReason, &sourcesJSON, &row.EmailAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		row.SourceCount = len(unmarshalSources(sourcesJSON))
		out = append(out, row)
	}
	return out, rows.Err()
}

func marshalSources(ids map[string]struct{}) string {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	sort.Strings(list)
	blob, _ := json.Marshal(list)
	return string(blob)
}

func unmarshalSources(blob string) map[string]struct{} {
	var list []string
	_ = json.Unmarshal([]byte(blob), &list)
	out := make(map[string]struct{}, len(list))
	for _, id := range list {
		out[id] = struct{}{}
	}
	return out
}
