// Package bitmap implements allocators.Allocator over a
// github.com/bits-and-blooms/bitset: one bit per address (or per
// delegated-prefix block), which keeps even large pools cheap to
// scan and mutate under a single lock.
package bitmap

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"github.com/bits-and-blooms/bitset"

	"github.com/hexasix/dhcp6d/allocators"
)

// AddressAllocator hands out individual IPv6 addresses from a
// contiguous range that must fit within a single /64: the range's
// offset is tracked as the low 64 bits of the address, which is
// sufficient for any IA_NA/IA_TA pool a real deployment configures.
type AddressAllocator struct {
	mu    sync.Mutex
	base  [8]byte // upper 64 bits shared by every address in range
	start uint64
	end   uint64
	bits  *bitset.BitSet
}

// NewAddressAllocator builds an allocator over [start, end] inclusive.
// start and end must share the same upper 64 bits (i.e. the same /64).
func NewAddressAllocator(start, end net.IP) (*AddressAllocator, error) {
	s16, e16 := start.To16(), end.To16()
	if s16 == nil || e16 == nil {
		return nil, fmt.Errorf("bitmap: start/end must be IPv6 addresses")
	}
	var sBase, eBase [8]byte
	copy(sBase[:], s16[:8])
	copy(eBase[:], e16[:8])
	if sBase != eBase {
		return nil, fmt.Errorf("bitmap: start and end must share the same /64")
	}
	startOffset := binary.BigEndian.Uint64(s16[8:16])
	endOffset := binary.BigEndian.Uint64(e16[8:16])
	if startOffset > endOffset {
		return nil, fmt.Errorf("bitmap: start of range must be <= end of range")
	}
	return &AddressAllocator{
		base:  sBase,
		start: startOffset,
		end:   endOffset,
		bits:  bitset.New(uint(endOffset - startOffset + 1)),
	}, nil
}

func (a *AddressAllocator) addressFor(offset uint64) net.IP {
	ip := make(net.IP, 16)
	copy(ip[:8], a.base[:])
	binary.BigEndian.PutUint64(ip[8:16], offset)
	return ip
}

func (a *AddressAllocator) offsetOf(ip net.IP) (uint64, bool) {
	ip16 := ip.To16()
	if ip16 == nil {
		return 0, false
	}
	var b [8]byte
	copy(b[:], ip16[:8])
	if b != a.base {
		return 0, false
	}
	offset := binary.BigEndian.Uint64(ip16[8:16])
	if offset < a.start || offset > a.end {
		return 0, false
	}
	return offset, true
}

// Allocate reserves want.IP if it is set and free, or the lowest free
// address in range otherwise.
func (a *AddressAllocator) Allocate(want net.IPNet) (*net.IPNet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if want.IP != nil {
		offset, ok := a.offsetOf(want.IP)
		if !ok {
			return nil, allocators.ErrOutOfRange
		}
		idx := uint(offset - a.start)
		if a.bits.Test(idx) {
			return nil, fmt.Errorf("bitmap: %s already leased", want.IP)
		}
		a.bits.Set(idx)
		return &net.IPNet{IP: a.addressFor(offset), Mask: net.CIDRMask(128, 128)}, nil
	}

	for offset := a.start; offset <= a.end; offset++ {
		idx := uint(offset - a.start)
		if !a.bits.Test(idx) {
			a.bits.Set(idx)
			return &net.IPNet{IP: a.addressFor(offset), Mask: net.CIDRMask(128, 128)}, nil
		}
		if offset == a.end {
			break
		}
	}
	return nil, allocators.ErrExhausted
}

func (a *AddressAllocator) Free(leased net.IPNet) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	offset, ok := a.offsetOf(leased.IP)
	if !ok {
		return allocators.ErrOutOfRange
	}
	a.bits.Clear(uint(offset - a.start))
	return nil
}

func (a *AddressAllocator) Contains(candidate net.IPNet) bool {
	_, ok := a.offsetOf(candidate.IP)
	return ok
}

// PrefixAllocator hands out fixed-length delegated prefixes carved
// out of a base prefix, e.g. /56 delegations out of a /48 pool, for
// IA_PD. Grounded on the same bitset-over-a-range shape as
// AddressAllocator; the offset here indexes delegated-length blocks
// instead of individual addresses.
type PrefixAllocator struct {
	mu           sync.Mutex
	base         *net.IPNet
	baseLen      int
	delegatedLen int
	bits         *bitset.BitSet
}

// NewPrefixAllocator builds an allocator carving delegatedLen-bit
// prefixes out of base. Both base's own prefix length and delegatedLen
// must be <= 64: every prefix delegation length seen in practice (/48
// bases delegating /56 or /60 or /64) falls within the address's upper
// 64 bits, so this allocator only ever indexes into that half.
func NewPrefixAllocator(base *net.IPNet, delegatedLen int) (*PrefixAllocator, error) {
	baseLen, bits := base.Mask.Size()
	if bits != 128 {
		return nil, fmt.Errorf("bitmap: base must be an IPv6 prefix")
	}
	if delegatedLen < baseLen || delegatedLen > 64 || baseLen > 64 {
		return nil, fmt.Errorf("bitmap: delegated length %d out of range for base /%d (both must be <= 64)", delegatedLen, baseLen)
	}
	if delegatedLen-baseLen > 32 {
		return nil, fmt.Errorf("bitmap: pool too large to index (%d blocks)", uint64(1)<<(delegatedLen-baseLen))
	}
	return &PrefixAllocator{
		base:         base,
		baseLen:      baseLen,
		delegatedLen: delegatedLen,
		bits:         bitset.New(uint(1) << uint(delegatedLen-baseLen)),
	}, nil
}

func (a *PrefixAllocator) prefixFor(block uint64) *net.IPNet {
	ip := append(net.IP(nil), a.base.IP.To16()...)
	upper := binary.BigEndian.Uint64(ip[0:8])
	upper |= block << uint(64-a.delegatedLen)
	binary.BigEndian.PutUint64(ip[0:8], upper)
	return &net.IPNet{IP: ip, Mask: net.CIDRMask(a.delegatedLen, 128)}
}

func (a *PrefixAllocator) blockOf(p *net.IPNet) (uint64, bool) {
	if p == nil {
		return 0, false
	}
	plen, bits := p.Mask.Size()
	if bits != 128 || plen != a.delegatedLen {
		return 0, false
	}
	if !a.base.Contains(p.IP) {
		return 0, false
	}
	upper := binary.BigEndian.Uint64(p.IP.To16()[0:8])
	return (upper >> uint(64-a.delegatedLen)) & ((uint64(1) << uint(a.delegatedLen-a.baseLen)) - 1), true
}

// Allocate reserves the delegated prefix inside want, or the lowest
// free block otherwise. want's Mask, if set, must equal delegatedLen.
func (a *PrefixAllocator) Allocate(want net.IPNet) (*net.IPNet, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if want.IP != nil {
		block, ok := a.blockOf(&want)
		if !ok {
			return nil, allocators.ErrOutOfRange
		}
		if a.bits.Test(uint(block)) {
			return nil, fmt.Errorf("bitmap: prefix block %d already leased", block)
		}
		a.bits.Set(uint(block))
		return a.prefixFor(block), nil
	}

	total := uint(1) << uint(a.delegatedLen-a.baseLen)
	for block := uint(0); block < total; block++ {
		if !a.bits.Test(block) {
			a.bits.Set(block)
			return a.prefixFor(uint64(block)), nil
		}
	}
	return nil, allocators.ErrExhausted
}

func (a *PrefixAllocator) Free(leased net.IPNet) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	block, ok := a.blockOf(&leased)
	if !ok {
		return allocators.ErrOutOfRange
	}
	a.bits.Clear(uint(block))
	return nil
}

func (a *PrefixAllocator) Contains(candidate net.IPNet) bool {
	_, ok := a.blockOf(&candidate)
	return ok
}

var (
	_ allocators.Allocator = (*AddressAllocator)(nil)
	_ allocators.Allocator = (*PrefixAllocator)(nil)
)
