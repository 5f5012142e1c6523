package db

import (
	"fmt"
	"math"
	"net/netip"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// normalizeValue converts what pgx decodes into values that encode as plain
// JSON numbers, strings, or null.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case pgtype.Numeric:
		if !val.Valid || val.NaN || val.InfinityModifier != pgtype.Finite {
			return nil
		}
		f, err := val.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return finite(f.Float64)
	case [16]byte:
		return uuid.UUID(val).String()
	case time.Time:
		return val
	case pgtype.Interval:
		if !val.Valid {
			return nil
		}
		d := time.Duration(val.Microseconds)*time.Microsecond +
			time.Duration(val.Days)*24*time.Hour
		if val.Months != 0 {
			return fmt.Sprintf("%d mons %s", val.Months, d)
		}
		return d.String()
	case pgtype.Time:
		if !val.Valid {
			return nil
		}
		return time.Duration(val.Microseconds * int64(time.Microsecond)).String()
	case netip.Prefix:
		return val.String()
	case netip.Addr:
		return val.String()
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return v
	}
}

func finite(f float64) any {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return f
}
