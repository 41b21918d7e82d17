package store

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore persists leases in a single sqlite table carrying both
// addresses and delegated prefixes behind an explicit kind
// discriminant.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the lease database at
// path. The driver is pure Go, so the binary builds without cgo.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, &Error{Op: "open", Err: err}
	}
	const schema = `create table if not exists leases (
		duid text not null,
		iaid text not null,
		kind int not null,
		ip text,
		prefix text,
		prefix_len int,
		preferred_seconds int not null,
		valid_seconds int not null,
		expires_at int not null,
		hostname text not null default '',
		primary key (duid, iaid, kind)
	)`
	if _, err := db.Exec(schema); err != nil {
		return nil, &Error{Op: "create schema", Err: err}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Lookup(duid []byte, iaid [4]byte, kind LeaseKind) (*Lease, error) {
	row := s.db.QueryRow(
		`select ip, prefix, prefix_len, preferred_seconds, valid_seconds, expires_at, hostname
		 from leases where duid = ? and iaid = ? and kind = ?`,
		hex.EncodeToString(duid), hex.EncodeToString(iaid[:]), int(kind))

	var ipStr, prefixStr, hostname string
	var prefixLen int
	var preferredSeconds, validSeconds, expiresAtUnix int64
	switch err := row.Scan(&ipStr, &prefixStr, &prefixLen, &preferredSeconds, &validSeconds, &expiresAtUnix, &hostname); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
		// fall through
	default:
		return nil, &Error{Op: "lookup", Err: err}
	}

	lease := &Lease{
		Kind:      kind,
		DUID:      append([]byte(nil), duid...),
		IAID:      iaid,
		Preferred: time.Duration(preferredSeconds) * time.Second,
		Valid:     time.Duration(validSeconds) * time.Second,
		ExpiresAt: time.Unix(expiresAtUnix, 0),
		Hostname:  hostname,
	}
	if kind == LeaseKindAddress && ipStr != "" {
		lease.IP = net.ParseIP(ipStr)
	}
	if kind == LeaseKindPrefix && prefixStr != "" {
		lease.Prefix = &net.IPNet{IP: net.ParseIP(prefixStr), Mask: net.CIDRMask(prefixLen, 128)}
	}
	return lease, nil
}

func (s *SQLiteStore) Save(lease *Lease) error {
	var ipStr, prefixStr string
	var prefixLen int
	if lease.IP != nil {
		ipStr = lease.IP.String()
	}
	if lease.Prefix != nil {
		prefixStr = lease.Prefix.IP.String()
		prefixLen, _ = lease.Prefix.Mask.Size()
	}
	_, err := s.db.Exec(
		`insert or replace into leases
		 (duid, iaid, kind, ip, prefix, prefix_len, preferred_seconds, valid_seconds, expires_at, hostname)
		 values (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		hex.EncodeToString(lease.DUID), hex.EncodeToString(lease.IAID[:]), int(lease.Kind),
		ipStr, prefixStr, prefixLen,
		int64(lease.Preferred/time.Second), int64(lease.Valid/time.Second),
		lease.ExpiresAt.Unix(), lease.Hostname)
	if err != nil {
		return &Error{Op: "save", Err: err}
	}
	return nil
}

func (s *SQLiteStore) Release(duid []byte, iaid [4]byte, kind LeaseKind) error {
	_, err := s.db.Exec(`delete from leases where duid = ? and iaid = ? and kind = ?`,
		hex.EncodeToString(duid), hex.EncodeToString(iaid[:]), int(kind))
	if err != nil {
		return &Error{Op: "release", Err: err}
	}
	return nil
}

func (s *SQLiteStore) LookupAll(duid []byte) ([]*Lease, error) {
	rows, err := s.db.Query(
		`select iaid, kind, ip, prefix, prefix_len, preferred_seconds, valid_seconds, expires_at, hostname
		 from leases where duid = ?`, hex.EncodeToString(duid))
	if err != nil {
		return nil, &Error{Op: "lookup-all", Err: err}
	}
	defer rows.Close()
	return scanLeases(rows, duid)
}

func (s *SQLiteStore) LookupByAddress(ip net.IP) (*Lease, error) {
	row := s.db.QueryRow(
		`select duid, iaid, kind, ip, prefix, prefix_len, preferred_seconds, valid_seconds, expires_at, hostname
		 from leases where kind = ? and ip = ?`, int(LeaseKindAddress), ip.String())

	var duidHex, iaidHex, ipStr, prefixStr, hostname string
	var kind LeaseKind
	var prefixLen int
	var preferredSeconds, validSeconds, expiresAtUnix int64
	switch err := row.Scan(&duidHex, &iaidHex, &kind, &ipStr, &prefixStr, &prefixLen, &preferredSeconds, &validSeconds, &expiresAtUnix, &hostname); err {
	case sql.ErrNoRows:
		return nil, nil
	case nil:
	default:
		return nil, &Error{Op: "lookup-by-address", Err: err}
	}

	duid, err := hex.DecodeString(duidHex)
	if err != nil {
		return nil, &Error{Op: "lookup-by-address", Err: err}
	}
	iaidBytes, err := hex.DecodeString(iaidHex)
	if err != nil {
		return nil, &Error{Op: "lookup-by-address", Err: err}
	}
	lease := &Lease{
		Kind:      kind,
		DUID:      duid,
		Preferred: time.Duration(preferredSeconds) * time.Second,
		Valid:     time.Duration(validSeconds) * time.Second,
		ExpiresAt: time.Unix(expiresAtUnix, 0),
		Hostname:  hostname,
		IP:        net.ParseIP(ipStr),
	}
	copy(lease.IAID[:], iaidBytes)
	return lease, nil
}

func scanLeases(rows *sql.Rows, duid []byte) ([]*Lease, error) {
	var out []*Lease
	for rows.Next() {
		var iaidHex, ipStr, prefixStr, hostname string
		var kind LeaseKind
		var prefixLen int
		var preferredSeconds, validSeconds, expiresAtUnix int64
		if err := rows.Scan(&iaidHex, &kind, &ipStr, &prefixStr, &prefixLen, &preferredSeconds, &validSeconds, &expiresAtUnix, &hostname); err != nil {
			return nil, &Error{Op: "scan", Err: err}
		}
		iaidBytes, err := hex.DecodeString(iaidHex)
		if err != nil {
			return nil, &Error{Op: "scan", Err: err}
		}
		lease := &Lease{
			Kind:      kind,
			DUID:      append([]byte(nil), duid...),
			Preferred: time.Duration(preferredSeconds) * time.Second,
			Valid:     time.Duration(validSeconds) * time.Second,
			ExpiresAt: time.Unix(expiresAtUnix, 0),
			Hostname:  hostname,
		}
		copy(lease.IAID[:], iaidBytes)
		if kind == LeaseKindAddress && ipStr != "" {
			lease.IP = net.ParseIP(ipStr)
		}
		if kind == LeaseKindPrefix && prefixStr != "" {
			lease.Prefix = &net.IPNet{IP: net.ParseIP(prefixStr), Mask: net.CIDRMask(prefixLen, 128)}
		}
		out = append(out, lease)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
