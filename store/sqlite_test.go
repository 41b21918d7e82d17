package store

import (
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "leases.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSQLiteStoreSaveAndLookupAddress(t *testing.T) {
	s := openTestStore(t)
	duid := []byte{0, 3, 0, 1, 1, 2, 3, 4, 5, 6}
	iaid := [4]byte{0, 0, 0, 1}

	missing, err := s.Lookup(duid, iaid, LeaseKindAddress)
	require.NoError(t, err)
	assert.Nil(t, missing)

	lease := &Lease{
		Kind:      LeaseKindAddress,
		DUID:      duid,
		IAID:      iaid,
		IP:        net.ParseIP("2001:db8::1"),
		Preferred: time.Hour,
		Valid:     2 * time.Hour,
		ExpiresAt: time.Now().Add(2 * time.Hour).Truncate(time.Second),
	}
	require.NoError(t, s.Save(lease))

	got, err := s.Lookup(duid, iaid, LeaseKindAddress)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IP.Equal(lease.IP))
	assert.Equal(t, time.Hour, got.Preferred)
	assert.Equal(t, 2*time.Hour, got.Valid)
}

func TestSQLiteStoreSaveReplacesExistingLease(t *testing.T) {
	s := openTestStore(t)
	duid := []byte{0, 3, 0, 1, 1, 2, 3, 4, 5, 6}
	iaid := [4]byte{9, 9, 9, 9}

	first := &Lease{Kind: LeaseKindAddress, DUID: duid, IAID: iaid, IP: net.ParseIP("2001:db8::1"), ExpiresAt: time.Now()}
	require.NoError(t, s.Save(first))
	second := &Lease{Kind: LeaseKindAddress, DUID: duid, IAID: iaid, IP: net.ParseIP("2001:db8::2"), ExpiresAt: time.Now()}
	require.NoError(t, s.Save(second))

	got, err := s.Lookup(duid, iaid, LeaseKindAddress)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.IP.Equal(net.ParseIP("2001:db8::2")))
}

func TestSQLiteStoreReleaseRemovesLease(t *testing.T) {
	s := openTestStore(t)
	duid := []byte{0xaa}
	iaid := [4]byte{1, 1, 1, 1}
	require.NoError(t, s.Save(&Lease{Kind: LeaseKindAddress, DUID: duid, IAID: iaid, IP: net.ParseIP("2001:db8::5"), ExpiresAt: time.Now()}))

	require.NoError(t, s.Release(duid, iaid, LeaseKindAddress))

	got, err := s.Lookup(duid, iaid, LeaseKindAddress)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLiteStoreLookupAllSpansKinds(t *testing.T) {
	s := openTestStore(t)
	duid := []byte{0xbb}
	_, prefix, err := net.ParseCIDR("2001:db8:100::/56")
	require.NoError(t, err)

	require.NoError(t, s.Save(&Lease{Kind: LeaseKindAddress, DUID: duid, IAID: [4]byte{1, 0, 0, 0}, IP: net.ParseIP("2001:db8::9"), ExpiresAt: time.Now()}))
	require.NoError(t, s.Save(&Lease{Kind: LeaseKindPrefix, DUID: duid, IAID: [4]byte{2, 0, 0, 0}, Prefix: prefix, ExpiresAt: time.Now()}))
	require.NoError(t, s.Save(&Lease{Kind: LeaseKindAddress, DUID: []byte{0xcc}, IAID: [4]byte{3, 0, 0, 0}, IP: net.ParseIP("2001:db8::10"), ExpiresAt: time.Now()}))

	all, err := s.LookupAll(duid)
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestSQLiteStoreLookupByAddress(t *testing.T) {
	s := openTestStore(t)
	duid := []byte{0xdd}
	ip := net.ParseIP("2001:db8::42")
	require.NoError(t, s.Save(&Lease{Kind: LeaseKindAddress, DUID: duid, IAID: [4]byte{4, 0, 0, 0}, IP: ip, ExpiresAt: time.Now()}))

	got, err := s.LookupByAddress(ip)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, duid, got.DUID)

	none, err := s.LookupByAddress(net.ParseIP("2001:db8::ffff"))
	require.NoError(t, err)
	assert.Nil(t, none)
}
