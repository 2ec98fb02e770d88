package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"go.trai.ch/zerr"
)

// Fingerprint is the 32-bit signed identity of a logical operation request.
// It is the key under which the worker stores every computed result.
type Fingerprint int32

// String returns the decimal form of the fingerprint.
func (f Fingerprint) String() string {
	return strconv.FormatInt(int64(f), 10)
}

// ParseFingerprint converts a decoded hash value into a Fingerprint.
// Hashes cross the wire either as numbers (JSON decodes them as float64, CBOR as
// int64/uint64) or as decimal strings.
//
//nolint:cyclop // one case per wire representation
func ParseFingerprint(v any) (Fingerprint, error) {
	switch h := v.(type) {
	case Fingerprint:
		return h, nil
	case int32:
		return Fingerprint(h), nil
	case int:
		return fromInt64(int64(h))
	case int64:
		return fromInt64(h)
	case uint64:
		if h > math.MaxInt32 {
			return 0, invalidHash(h)
		}
		return Fingerprint(h), nil
	case float64:
		if h != math.Trunc(h) {
			return 0, invalidHash(h)
		}
		return fromInt64(int64(h))
	case json.Number:
		n, err := h.Int64()
		if err != nil {
			return 0, invalidHash(h.String())
		}
		return fromInt64(n)
	case string:
		n, err := strconv.ParseInt(h, 10, 32)
		if err != nil {
			return 0, invalidHash(h)
		}
		return Fingerprint(n), nil
	default:
		return 0, invalidHash(v)
	}
}

func invalidHash(v any) error {
	return zerr.With(zerr.Wrap(ErrInvalidHash, fmt.Sprintf("%v", v)), "hash", v)
}

func fromInt64(n int64) (Fingerprint, error) {
	if n < math.MinInt32 || n > math.MaxInt32 {
		return 0, invalidHash(n)
	}
	return Fingerprint(n), nil
}
