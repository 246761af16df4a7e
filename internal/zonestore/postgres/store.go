// Package postgres is an optional alternate zone backend that sits
// alongside on-disk zone files: an authoritative resolver can load zones
// from Postgres in addition to --zones. Two tables, zones and
// zone_records, hold everything this resolver needs.
package postgres

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/gob"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/alir32a/mydns/internal/dnsmsg"
	"github.com/alir32a/mydns/internal/zonefile"
)

// Store persists zones and their records in PostgreSQL. A record's rdata
// is gob-encoded the same way the Redis L2 cache layer encodes cached
// records, so both storage tiers share one wire format for Record.Data.
type Store struct {
	db *sql.DB
}

// Open connects to dsn using the pgx stdlib driver and returns a Store.
// It does not verify connectivity; call Ping for that.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("zonestore: open: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sql.DB, used by tests with sqlmock.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping verifies connectivity, failing fast on startup rather than on the
// first zone load.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the zones/records tables if they don't already exist.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS zones (
	id     UUID PRIMARY KEY,
	origin TEXT NOT NULL UNIQUE,
	ttl    INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS zone_records (
	id          UUID PRIMARY KEY,
	zone_origin TEXT NOT NULL REFERENCES zones(origin) ON DELETE CASCADE,
	name        TEXT NOT NULL,
	type        INTEGER NOT NULL,
	class       INTEGER NOT NULL,
	ttl         INTEGER NOT NULL,
	rdata       BYTEA NOT NULL
);
CREATE INDEX IF NOT EXISTS zone_records_zone_origin_idx ON zone_records(zone_origin);
`)
	if err != nil {
		return fmt.Errorf("zonestore: migrate: %w", err)
	}
	return nil
}

// SaveZone upserts zone and replaces its full record set. Zone and record
// primary keys are generated here with uuid.New() rather than trusted
// from the caller.
func (s *Store) SaveZone(ctx context.Context, zone *zonefile.Zone) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("zonestore: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
INSERT INTO zones (id, origin, ttl) VALUES ($1, $2, $3)
ON CONFLICT (origin) DO UPDATE SET ttl = EXCLUDED.ttl`,
		uuid.New().String(), zone.Origin, zone.TTL)
	if err != nil {
		return fmt.Errorf("zonestore: upsert zone: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM zone_records WHERE zone_origin = $1`, zone.Origin); err != nil {
		return fmt.Errorf("zonestore: clear records: %w", err)
	}

	for i, rec := range zone.Records {
		rdata, err := encodeRData(rec.Data)
		if err != nil {
			return fmt.Errorf("zonestore: encode record %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO zone_records (id, zone_origin, name, type, class, ttl, rdata)
VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			uuid.New().String(), zone.Origin, rec.Name, int(rec.Type), int(rec.Class), rec.TTL, rdata)
		if err != nil {
			return fmt.Errorf("zonestore: insert record %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("zonestore: commit: %w", err)
	}
	return nil
}

// LoadAll reads every zone and its records back out, in the shape the
// authoritative resolver seeds its cache from.
func (s *Store) LoadAll(ctx context.Context) ([]*zonefile.Zone, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT origin, ttl FROM zones`)
	if err != nil {
		return nil, fmt.Errorf("zonestore: query zones: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var zones []*zonefile.Zone
	for rows.Next() {
		z := &zonefile.Zone{}
		if err := rows.Scan(&z.Origin, &z.TTL); err != nil {
			return nil, fmt.Errorf("zonestore: scan zone: %w", err)
		}
		zones = append(zones, z)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, z := range zones {
		recs, err := s.loadRecords(ctx, z.Origin)
		if err != nil {
			return nil, err
		}
		z.Records = recs
	}
	return zones, nil
}

func (s *Store) loadRecords(ctx context.Context, origin string) ([]dnsmsg.Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, type, class, ttl, rdata FROM zone_records WHERE zone_origin = $1`, origin)
	if err != nil {
		return nil, fmt.Errorf("zonestore: query records for %s: %w", origin, err)
	}
	defer func() { _ = rows.Close() }()

	var records []dnsmsg.Record
	for rows.Next() {
		var rec dnsmsg.Record
		var typeCode, classCode int
		var rdata []byte
		if err := rows.Scan(&rec.Name, &typeCode, &classCode, &rec.TTL, &rdata); err != nil {
			return nil, fmt.Errorf("zonestore: scan record: %w", err)
		}
		rec.Type = dnsmsg.Type(typeCode)
		rec.Class = dnsmsg.Class(classCode)
		data, err := decodeRData(rdata)
		if err != nil {
			return nil, fmt.Errorf("zonestore: decode record for %s: %w", rec.Name, err)
		}
		rec.Data = data
		records = append(records, rec)
	}
	return records, rows.Err()
}

func encodeRData(data dnsmsg.RecordData) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeRData(raw []byte) (dnsmsg.RecordData, error) {
	var data dnsmsg.RecordData
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&data); err != nil {
		return nil, err
	}
	if data == nil {
		return nil, errors.New("zonestore: nil rdata decoded")
	}
	return data, nil
}

func init() {
	gob.Register(dnsmsg.AData{})
	gob.Register(dnsmsg.AAAAData{})
	gob.Register(dnsmsg.NSData{})
	gob.Register(dnsmsg.CNAMEData{})
	gob.Register(dnsmsg.PTRData{})
	gob.Register(dnsmsg.TXTData{})
	gob.Register(dnsmsg.MXData{})
	gob.Register(&dnsmsg.SOAData{})
	gob.Register(dnsmsg.HINFOData{})
	gob.Register(dnsmsg.SRVData{})
	gob.Register(dnsmsg.UnknownData{})
}
