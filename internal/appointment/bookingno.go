package appointment

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	bookingNoPrefix = "AP"
	maxBookingSeq   = 9999
)

// BookingPrefix is the day prefix for numbers issued at t: "AP" and the
// issuance date, not the visit date.
func BookingPrefix(issued time.Time) string {
	return bookingNoPrefix + issued.Format("20060102")
}

func FormatBookingNo(prefix string, seq int) (string, error) {
	if seq < 0 || seq > maxBookingSeq {
		return "", ErrBookingSequenceExhausted
	}
	return fmt.Sprintf("%s%04d", prefix, seq), nil
}

// BookingSeq extracts the daily sequence from a booking number with the given prefix.
func BookingSeq(bookingNo, prefix string) (int, bool) {
	rest, ok := strings.CutPrefix(bookingNo, prefix)
	if !ok || len(rest) != 4 {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}
