/**
 * SQLite Implementation.
 *
 * Implements the Storage interface over mattn/go-sqlite3, tuned for a
 * single-writer/many-reader workload on constrained hardware: a small
 * pooled connection count, WAL-equivalent pragmas, and retry-with-backoff
 * on transient lock errors.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/kleaSCM/sentinel/internal/errs"
	"github.com/kleaSCM/sentinel/internal/models"
)

const (
	maxOpenConns = 5
	maxIdleConns = 2
)

var retryableSubstrings = []string{"locked", "busy", "connection lost"}

// SQLiteStorage implements Storage over a single *sql.DB, which itself
// pools the underlying driver connections.
type SQLiteStorage struct {
	db  *sql.DB
	log *zap.Logger
}

// NewSQLiteStorage opens dbPath, applies pragmas tuned for a
// constrained, mostly-local deployment, and runs pending migrations.
func NewSQLiteStorage(ctx context.Context, dbPath string, log *zap.Logger) (*SQLiteStorage, error) {
	if log == nil {
		log = zap.NewNop()
	}
	// foreign_keys is a per-connection PRAGMA, not a database-level
	// setting: applying it once via ExecContext against the pooled
	// *sql.DB only reaches whichever one connection served that call,
	// leaving FK enforcement on every other pooled connection off.
	// go-sqlite3 applies DSN query pragmas to every connection it opens,
	// so it belongs in the DSN, not in applyPragmas below.
	db, err := sql.Open("sqlite3", withForeignKeysDSN(dbPath))
	if err != nil {
		return nil, errs.New(errs.StoreFatal, "sqlite.Open", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errs.New(errs.StoreFatal, "sqlite.Ping", err)
	}

	s := &SQLiteStorage{db: db, log: log}
	if err := s.applyPragmas(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// withForeignKeysDSN appends the go-sqlite3 DSN query parameter that
// turns foreign_keys on for every connection the driver opens.
func withForeignKeysDSN(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + "_foreign_keys=on"
}

func (s *SQLiteStorage) applyPragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=-32000",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA mmap_size=268435456",
	}
	for _, p := range pragmas {
		if _, err := s.db.ExecContext(ctx, p); err != nil {
			return errs.New(errs.StoreFatal, "sqlite.applyPragmas", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Migrate runs every migration whose version is not yet recorded in
// schema_version, in order. Re-running is a no-op.
func (s *SQLiteStorage) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaV1); err != nil {
		return errs.New(errs.StoreFatal, "sqlite.Migrate", err)
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_version WHERE version = ?`, m.version).Scan(&exists)
		if err != nil {
			return errs.New(errs.StoreFatal, "sqlite.Migrate", err)
		}
		if exists > 0 {
			continue
		}
		if m.version != 1 {
			if _, err := s.db.ExecContext(ctx, m.stmt); err != nil {
				return errs.New(errs.StoreFatal, "sqlite.Migrate", err)
			}
		}
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_version (version, applied_at, description) VALUES (?, ?, ?)`,
			m.version, time.Now().UnixMilli(), m.description)
		if err != nil {
			return errs.New(errs.StoreFatal, "sqlite.Migrate", err)
		}
	}
	return nil
}

// withRetry retries a write op up to 3 times with 1s/2s/4s backoff on
// lock/busy/connection errors. Any other error surfaces immediately.
func (s *SQLiteStorage) withRetry(ctx context.Context, op string, fn func() error) error {
	err := retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(4), // 1 initial + 3 retries
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.RetryIf(func(err error) bool {
			msg := strings.ToLower(err.Error())
			for _, sub := range retryableSubstrings {
				if strings.Contains(msg, sub) {
					return true
				}
			}
			return false
		}),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		msg := strings.ToLower(err.Error())
		for _, sub := range retryableSubstrings {
			if strings.Contains(msg, sub) {
				return errs.New(errs.StoreTransient, op, err)
			}
		}
		return errs.New(errs.StoreFatal, op, err)
	}
	return nil
}

// --- Devices ---

// macLessPrefix keys MAC-less devices (no observed Ethernet source, or
// device_id carried over IP alone) by IP instead of collapsing them
// all onto one empty-string "mac" value, which the column's UNIQUE
// constraint would otherwise fold into a single row.
const macLessPrefix = "unknown:"

func (s *SQLiteStorage) SaveDevice(ctx context.Context, d *models.Device) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	behavioral, err := json.Marshal(d.Behavioral)
	if err != nil {
		return errs.New(errs.StoreFatal, "sqlite.SaveDevice", err)
	}

	macKey := d.MACAddress
	if macKey == "" {
		macKey = macLessPrefix + d.IPAddress
	}

	query := `
	INSERT INTO devices (id, name, ip, mac, type, vendor, first_seen, last_seen, bytes_total, connections_count, threat_score, behavioral_json)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(mac) DO UPDATE SET
		name = excluded.name,
		ip = excluded.ip,
		type = excluded.type,
		vendor = excluded.vendor,
		last_seen = excluded.last_seen,
		bytes_total = excluded.bytes_total,
		connections_count = excluded.connections_count,
		threat_score = excluded.threat_score,
		behavioral_json = excluded.behavioral_json
	`
	return s.withRetry(ctx, "sqlite.SaveDevice", func() error {
		_, err := s.db.ExecContext(ctx, query,
			d.ID, d.Name, d.IPAddress, macKey, d.Type, d.Vendor,
			d.FirstSeen.UnixMilli(), d.LastSeen.UnixMilli(),
			d.BytesTotal, d.ConnectionsCount, d.ThreatScore, string(behavioral))
		return err
	})
}

func scanDevice(row interface {
	Scan(dest ...any) error
}) (*models.Device, error) {
	var d models.Device
	var firstSeen, lastSeen int64
	var behavioral, mac string
	err := row.Scan(&d.ID, &d.Name, &d.IPAddress, &mac, &d.Type, &d.Vendor,
		&firstSeen, &lastSeen, &d.BytesTotal, &d.ConnectionsCount, &d.ThreatScore, &behavioral)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(mac, macLessPrefix) {
		d.MACAddress = mac
	}
	d.FirstSeen = time.UnixMilli(firstSeen)
	d.LastSeen = time.UnixMilli(lastSeen)
	_ = json.Unmarshal([]byte(behavioral), &d.Behavioral)
	return &d, nil
}

const deviceColumns = `id, name, ip, mac, type, vendor, first_seen, last_seen, bytes_total, connections_count, threat_score, behavioral_json`

func (s *SQLiteStorage) GetDevice(ctx context.Context, id string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE id = ?`, id)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.GetDevice", err)
	}
	return d, nil
}

func (s *SQLiteStorage) GetDeviceByMAC(ctx context.Context, mac string) (*models.Device, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE mac = ?`, mac)
	d, err := scanDevice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.GetDeviceByMAC", err)
	}
	return d, nil
}

func (s *SQLiteStorage) ListDevices(ctx context.Context) ([]*models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices ORDER BY last_seen DESC`)
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.ListDevices", err)
	}
	defer rows.Close()

	var out []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, errs.New(errs.StoreTransient, "sqlite.ListDevices", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) SearchDevices(ctx context.Context, nameLike string) ([]*models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+deviceColumns+` FROM devices WHERE name LIKE ? ORDER BY last_seen DESC`, "%"+nameLike+"%")
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.SearchDevices", err)
	}
	defer rows.Close()

	var out []*models.Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, errs.New(errs.StoreTransient, "sqlite.SearchDevices", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// --- Flows ---

const flowColumns = `id, timestamp, src_ip, src_port, dst_ip, dst_port, protocol, bytes_in, bytes_out, packets_in, packets_out,
	duration_ms, status, country, city, asn, domain, sni, threat_level, device_id, tcp_flags_csv, ttl, connection_state,
	rtt, retransmissions, jitter, application, user_agent, http_method, url, dns_query_type, dns_response_code`

func (s *SQLiteStorage) SaveFlow(ctx context.Context, f *models.Flow) error {
	return s.withRetry(ctx, "sqlite.SaveFlow", func() error {
		return insertFlow(ctx, s.db, f)
	})
}

func (s *SQLiteStorage) SaveFlowsBatch(ctx context.Context, flows []*models.Flow) error {
	if len(flows) == 0 {
		return nil
	}
	return s.withRetry(ctx, "sqlite.SaveFlowsBatch", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		for _, f := range flows {
			if err := insertFlow(ctx, tx, f); err != nil {
				tx.Rollback()
				return err
			}
		}
		return tx.Commit()
	})
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertFlow(ctx context.Context, e execer, f *models.Flow) error {
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	query := `
	INSERT INTO flows (` + flowColumns + `)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := e.ExecContext(ctx, query,
		f.ID, f.FirstSeen.UnixMilli(), f.Key.SrcIP, f.Key.SrcPort, f.Key.DstIP, f.Key.DstPort, f.Key.Protocol,
		f.BytesIn, f.BytesOut, f.PacketsIn, f.PacketsOut,
		f.Duration().Milliseconds(), string(f.State), f.DstCountry, f.DstCity, f.DstASN, f.DstDomain, f.TLSSNI,
		string(f.ThreatLevel), f.DeviceID, tcpFlagsCSV(f.TCPFlags), f.TTL, string(f.ConnectionState),
		f.RTTMillis, f.Retransmissions, f.JitterMillis, f.Application, f.UserAgent, f.HTTPMethod, f.HTTPURL,
		f.DNSQueryType, f.DNSResponseCode,
	)
	return err
}

func tcpFlagsCSV(flags map[string]bool) string {
	if len(flags) == 0 {
		return ""
	}
	parts := make([]string, 0, len(flags))
	for f, set := range flags {
		if set {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, ",")
}

func scanFlow(row interface {
	Scan(dest ...any) error
}) (*models.Flow, error) {
	var f models.Flow
	var ts, durationMs int64
	var status, connState, tcpFlagsCSV string
	err := row.Scan(
		&f.ID, &ts, &f.Key.SrcIP, &f.Key.SrcPort, &f.Key.DstIP, &f.Key.DstPort, &f.Key.Protocol,
		&f.BytesIn, &f.BytesOut, &f.PacketsIn, &f.PacketsOut,
		&durationMs, &status, &f.DstCountry, &f.DstCity, &f.DstASN, &f.DstDomain, &f.TLSSNI,
		&f.ThreatLevel, &f.DeviceID, &tcpFlagsCSV, &f.TTL, &connState,
		&f.RTTMillis, &f.Retransmissions, &f.JitterMillis, &f.Application, &f.UserAgent, &f.HTTPMethod, &f.HTTPURL,
		&f.DNSQueryType, &f.DNSResponseCode,
	)
	if err != nil {
		return nil, err
	}
	f.FirstSeen = time.UnixMilli(ts)
	f.LastSeen = f.FirstSeen.Add(time.Duration(durationMs) * time.Millisecond)
	f.State = models.FlowStatus(status)
	f.ConnectionState = models.ConnectionState(connState)
	f.Protocol = f.Key.Protocol
	if tcpFlagsCSV != "" {
		f.TCPFlags = make(map[string]bool)
		for _, fl := range strings.Split(tcpFlagsCSV, ",") {
			f.TCPFlags[fl] = true
		}
	}
	return &f, nil
}

func (s *SQLiteStorage) GetFlow(ctx context.Context, id string) (*models.Flow, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+flowColumns+` FROM flows WHERE id = ?`, id)
	f, err := scanFlow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.GetFlow", err)
	}
	return f, nil
}

// GetFlows applies the composable filter space, then paginates.
func (s *SQLiteStorage) GetFlows(ctx context.Context, f FlowFilter) ([]*models.Flow, error) {
	f.Page = f.Page.clamp()
	if f.Limit == 0 {
		return nil, nil
	}
	if f.Time.Start != 0 && f.Time.End != 0 && f.Time.Start > f.Time.End {
		return nil, errs.New(errs.StoreFatal, "sqlite.GetFlows", fmt.Errorf("time range start > end"))
	}

	where := []string{"1=1"}
	args := []any{}

	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}

	if f.DeviceID != "" {
		add("device_id = ?", f.DeviceID)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.Protocol != "" {
		add("protocol = ?", f.Protocol)
	}
	if f.Time.Start != 0 {
		add("timestamp >= ?", f.Time.Start)
	}
	if f.Time.End != 0 {
		add("timestamp <= ?", f.Time.End)
	}
	if f.SrcIP != "" {
		add("src_ip = ?", f.SrcIP)
	}
	if f.DstIP != "" {
		add("dst_ip = ?", f.DstIP)
	}
	if f.ThreatLevel != "" {
		add("threat_level = ?", string(f.ThreatLevel))
	}
	if f.MinBytes != 0 {
		add("(bytes_in + bytes_out) >= ?", f.MinBytes)
	}
	if f.Country != "" {
		add("country = ?", f.Country)
	}
	if f.City != "" {
		add("city = ?", f.City)
	}
	if f.Application != "" {
		add("application = ?", f.Application)
	}
	if f.MinRTTMillis != 0 {
		add("rtt >= ?", f.MinRTTMillis)
	}
	if f.MaxRTTMillis != 0 {
		add("rtt <= ?", f.MaxRTTMillis)
	}
	if f.MaxJitterMillis != 0 {
		add("jitter <= ?", f.MaxJitterMillis)
	}
	if f.MaxRetransmissions != 0 {
		add("retransmissions <= ?", f.MaxRetransmissions)
	}
	if f.SNIContains != "" {
		add("sni LIKE ?", "%"+f.SNIContains+"%")
	}
	if f.DomainContains != "" {
		add("domain LIKE ?", "%"+f.DomainContains+"%")
	}
	if f.ConnectionState != "" {
		add("connection_state = ?", string(f.ConnectionState))
	}

	query := fmt.Sprintf(`SELECT %s FROM flows WHERE %s ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		flowColumns, strings.Join(where, " AND "))
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.GetFlows", err)
	}
	defer rows.Close()

	var out []*models.Flow
	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, errs.New(errs.StoreTransient, "sqlite.GetFlows", err)
		}
		out = append(out, flow)
	}
	return out, rows.Err()
}

// --- Threats ---

const threatColumns = `id, timestamp, type, severity, device_id, flow_id, description, recommendation, dismissed`

func (s *SQLiteStorage) SaveThreat(ctx context.Context, t *models.Threat) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	return s.withRetry(ctx, "sqlite.SaveThreat", func() error {
		_, err := s.db.ExecContext(ctx, `
		INSERT INTO threats (`+threatColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, t.ID, t.Timestamp.UnixMilli(), string(t.Type), string(t.Severity), t.DeviceID, t.FlowID, t.Description, t.Recommendation, t.Dismissed)
		return err
	})
}

func scanThreat(row interface {
	Scan(dest ...any) error
}) (*models.Threat, error) {
	var t models.Threat
	var ts int64
	err := row.Scan(&t.ID, &ts, &t.Type, &t.Severity, &t.DeviceID, &t.FlowID, &t.Description, &t.Recommendation, &t.Dismissed)
	if err != nil {
		return nil, err
	}
	t.Timestamp = time.UnixMilli(ts)
	return &t, nil
}

func (s *SQLiteStorage) GetThreat(ctx context.Context, id string) (*models.Threat, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+threatColumns+` FROM threats WHERE id = ?`, id)
	t, err := scanThreat(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.GetThreat", err)
	}
	return t, nil
}

func (s *SQLiteStorage) GetThreats(ctx context.Context, f ThreatFilter) ([]*models.Threat, error) {
	f.Page = f.Page.clamp()
	if f.Limit == 0 {
		return nil, nil
	}
	where := []string{"1=1"}
	args := []any{}
	add := func(clause string, arg any) {
		where = append(where, clause)
		args = append(args, arg)
	}
	if f.DeviceID != "" {
		add("device_id = ?", f.DeviceID)
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.Severity != "" {
		add("severity = ?", string(f.Severity))
	}
	if f.Dismissed != nil {
		add("dismissed = ?", *f.Dismissed)
	}
	if f.Time.Start != 0 {
		add("timestamp >= ?", f.Time.Start)
	}
	if f.Time.End != 0 {
		add("timestamp <= ?", f.Time.End)
	}

	query := fmt.Sprintf(`SELECT %s FROM threats WHERE %s ORDER BY timestamp DESC LIMIT ? OFFSET ?`,
		threatColumns, strings.Join(where, " AND "))
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errs.New(errs.StoreTransient, "sqlite.GetThreats", err)
	}
	defer rows.Close()

	var out []*models.Threat
	for rows.Next() {
		t, err := scanThreat(rows)
		if err != nil {
			return nil, errs.New(errs.StoreTransient, "sqlite.GetThreats", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// DismissThreat is idempotent: dismissing an already-dismissed threat
// succeeds without error.
func (s *SQLiteStorage) DismissThreat(ctx context.Context, id string) error {
	return s.withRetry(ctx, "sqlite.DismissThreat", func() error {
		_, err := s.db.ExecContext(ctx, `UPDATE threats SET dismissed = 1 WHERE id = ?`, id)
		return err
	})
}

// --- Retention & stats ---

// CleanupOldData purges flows and dismissed threats older than the
// cutoff, in one transaction. Threats go first so their flow_id
// foreign keys release the flows they point at; a flow still pinned
// by an undismissed threat is skipped rather than failing the whole
// purge (threats change only by dismissal, so deleting one here is
// not an option) and becomes purgeable on the run after its threat is
// dismissed. Idempotent: a second run over clean data deletes zero
// rows.
func (s *SQLiteStorage) CleanupOldData(ctx context.Context, days int) (int64, int64, error) {
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()

	var flowsDeleted, threatsDeleted int64
	err := s.withRetry(ctx, "sqlite.CleanupOldData", func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM threats WHERE timestamp < ? AND dismissed = 1`, cutoff)
		if err != nil {
			tx.Rollback()
			return err
		}
		threatsDeleted, _ = res.RowsAffected()

		res, err = tx.ExecContext(ctx, `
		DELETE FROM flows
		WHERE timestamp < ?
		  AND id NOT IN (SELECT flow_id FROM threats)`, cutoff)
		if err != nil {
			tx.Rollback()
			return err
		}
		flowsDeleted, _ = res.RowsAffected()

		return tx.Commit()
	})
	return flowsDeleted, threatsDeleted, err
}

func (s *SQLiteStorage) GetDatabaseStats(ctx context.Context) (Stats, error) {
	var stats Stats
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM devices`).Scan(&stats.DeviceCount); err != nil {
		return stats, errs.New(errs.StoreTransient, "sqlite.GetDatabaseStats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM flows`).Scan(&stats.FlowCount); err != nil {
		return stats, errs.New(errs.StoreTransient, "sqlite.GetDatabaseStats", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM threats`).Scan(&stats.ThreatCount); err != nil {
		return stats, errs.New(errs.StoreTransient, "sqlite.GetDatabaseStats", err)
	}
	_ = s.db.QueryRowContext(ctx, `SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()`).Scan(&stats.DBSizeBytes)
	return stats, nil
}
