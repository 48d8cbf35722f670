// Package sizing provides checked conversions between the integer widths used
// on disk and in memory.
package sizing

import (
	"math"
)

// ToInt converts a uint64 to int, returning overflowErr if it doesn't fit.
func ToInt(size uint64, overflowErr error) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, overflowErr
	}
	return int(size), nil
}

// ToInt64 converts a uint64 to int64, returning overflowErr if it doesn't fit.
func ToInt64(size uint64, overflowErr error) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, overflowErr
	}
	return int64(size), nil
}

// ToUint32 converts a uint64 to uint32, returning overflowErr if it doesn't fit.
func ToUint32(size uint64, overflowErr error) (uint32, error) {
	if size > math.MaxUint32 {
		return 0, overflowErr
	}
	return uint32(size), nil
}

// ToUint16 converts a uint64 to uint16, returning overflowErr if it doesn't fit.
func ToUint16(size uint64, overflowErr error) (uint16, error) {
	if size > math.MaxUint16 {
		return 0, overflowErr
	}
	return uint16(size), nil
}

// AddUint64 adds two uint64 values, returning (result, false) on overflow.
func AddUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
