/**
 * Database Schema.
 *
 * Defines the DDL for the three durable tables (devices, flows,
 * threats) plus the schema_version ledger that makes startup
 * migrations idempotent.
 *
 * Author: KleaSCM
 * Email: KleaSCM@gmail.com
 */

package storage

const schemaV1 = `
CREATE TABLE IF NOT EXISTS devices (
    id                 TEXT PRIMARY KEY,
    name               TEXT NOT NULL,
    ip                 TEXT NOT NULL,
    mac                TEXT NOT NULL UNIQUE,
    type               TEXT NOT NULL,
    vendor             TEXT NOT NULL,
    os                 TEXT,
    first_seen         INTEGER NOT NULL,
    last_seen          INTEGER NOT NULL,
    bytes_total        INTEGER NOT NULL DEFAULT 0,
    connections_count  INTEGER NOT NULL DEFAULT 0,
    threat_score       INTEGER NOT NULL DEFAULT 0,
    behavioral_json     TEXT NOT NULL DEFAULT '{}',
    notes              TEXT,
    ipv6_support       INTEGER,
    avg_rtt            REAL,
    connection_quality TEXT,
    applications_csv   TEXT
);
CREATE INDEX IF NOT EXISTS idx_devices_name ON devices(name);
CREATE INDEX IF NOT EXISTS idx_devices_ip   ON devices(ip);

CREATE TABLE IF NOT EXISTS flows (
    id                TEXT PRIMARY KEY,
    timestamp         INTEGER NOT NULL,
    src_ip            TEXT NOT NULL,
    src_port          INTEGER NOT NULL,
    dst_ip            TEXT NOT NULL,
    dst_port          INTEGER NOT NULL,
    protocol          TEXT NOT NULL,
    bytes_in          INTEGER NOT NULL DEFAULT 0,
    bytes_out         INTEGER NOT NULL DEFAULT 0,
    packets_in        INTEGER NOT NULL DEFAULT 0,
    packets_out       INTEGER NOT NULL DEFAULT 0,
    duration_ms       INTEGER NOT NULL DEFAULT 0,
    status            TEXT NOT NULL,
    country           TEXT,
    city              TEXT,
    asn               TEXT,
    domain            TEXT,
    sni               TEXT,
    threat_level      TEXT NOT NULL,
    device_id         TEXT NOT NULL,
    tcp_flags_csv     TEXT,
    ttl               INTEGER,
    connection_state  TEXT,
    rtt               REAL,
    retransmissions   INTEGER,
    jitter            REAL,
    application       TEXT,
    user_agent        TEXT,
    http_method       TEXT,
    url               TEXT,
    dns_query_type    TEXT,
    dns_response_code TEXT,
    FOREIGN KEY (device_id) REFERENCES devices(id)
);
CREATE INDEX IF NOT EXISTS idx_flows_timestamp ON flows(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_flows_device    ON flows(device_id);
CREATE INDEX IF NOT EXISTS idx_flows_status    ON flows(status);
CREATE INDEX IF NOT EXISTS idx_flows_src_ip    ON flows(src_ip);
CREATE INDEX IF NOT EXISTS idx_flows_dst_ip    ON flows(dst_ip);
CREATE INDEX IF NOT EXISTS idx_flows_domain    ON flows(domain);

CREATE TABLE IF NOT EXISTS threats (
    id             TEXT PRIMARY KEY,
    timestamp      INTEGER NOT NULL,
    type           TEXT NOT NULL,
    severity       TEXT NOT NULL,
    device_id      TEXT NOT NULL,
    flow_id        TEXT NOT NULL,
    description    TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    dismissed      INTEGER NOT NULL DEFAULT 0,
    FOREIGN KEY (device_id) REFERENCES devices(id),
    FOREIGN KEY (flow_id) REFERENCES flows(id)
);
CREATE INDEX IF NOT EXISTS idx_threats_dismissed ON threats(dismissed);
CREATE INDEX IF NOT EXISTS idx_threats_timestamp ON threats(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_threats_type      ON threats(type);
CREATE INDEX IF NOT EXISTS idx_threats_severity  ON threats(severity);

CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER PRIMARY KEY,
    applied_at  INTEGER NOT NULL,
    description TEXT NOT NULL
);
`

// migration is one monotonically-numbered schema step. Applying one
// that has already run (version already present in schema_version) is
// a no-op.
type migration struct {
	version     int
	description string
	stmt        string
}

// migrations lists every schema step in order. Adding a column later
// means appending a migration here, never editing schemaV1 in place.
var migrations = []migration{
	{version: 1, description: "initial schema: devices, flows, threats", stmt: schemaV1},
}
