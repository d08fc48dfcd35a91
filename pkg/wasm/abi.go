// Package wasm implements the guest/host calling convention zome
// functions run under: a single (i64) -> i64 guest entry point per
// exported function, allocation descriptors packed into that i64, and a
// fixed vocabulary of host functions imported under the "env" module.
package wasm

import "github.com/cuemby/holo/pkg/holoerr"

// allocation is a guest linear-memory region: Offset bytes into guest
// memory, Length bytes long.
type allocation struct {
	Offset uint32
	Length uint32
}

// packAllocation encodes an allocation as the guest calling convention's
// single i64: high 32 bits the offset, low 32 bits the length.
func packAllocation(a allocation) int64 {
	return int64(uint64(a.Offset)<<32 | uint64(a.Length))
}

// unpackAllocation reverses packAllocation.
func unpackAllocation(v int64) allocation {
	u := uint64(v)
	return allocation{Offset: uint32(u >> 32), Length: uint32(u & 0xffffffff)}
}

// decodeReturn interprets a guest function's i64 return value. A low-32
// of zero is reserved for a status code rather than a real allocation
// (even a present-but-empty response is never returned as length zero;
// see RibosomeZeroSizedAllocation): high-32 zero means success with no
// response body, any other high-32 is a holoerr.RibosomeFailure code.
// Otherwise the return value is the allocation of the response body.
func decodeReturn(v int64) (body allocation, ok bool, err error) {
	a := unpackAllocation(v)
	if a.Length != 0 {
		return a, true, nil
	}
	if a.Offset == 0 {
		return allocation{}, false, nil
	}
	return allocation{}, false, holoerr.RibosomeFailure(a.Offset).Err()
}
