package postgres

import (
	"fmt"
	"strconv"
	"strings"
)

// LSN is a PostgreSQL Log Sequence Number: a 64-bit location in the WAL.
type LSN uint64

// String formats the LSN in the canonical XXX/XXX form.
func (lsn LSN) String() string {
	return fmt.Sprintf("%X/%X", uint32(lsn>>32), uint32(lsn))
}

// ParseLSN parses the canonical XXX/XXX form. The whole input must be a
// valid LSN; trailing garbage is rejected.
func ParseLSN(s string) (LSN, error) {
	upperStr, lowerStr, ok := strings.Cut(s, "/")
	if !ok {
		return 0, fmt.Errorf("failed to parse LSN %q: missing separator", s)
	}
	upper, err := strconv.ParseUint(upperStr, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse LSN %q: %w", s, err)
	}
	lower, err := strconv.ParseUint(lowerStr, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("failed to parse LSN %q: %w", s, err)
	}
	return LSN(upper)<<32 + LSN(lower), nil
}
