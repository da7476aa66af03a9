package alarm

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/sosodev/duration"
)

// ErrMalformedDuration is returned for a relative trigger that is not an
// ISO 8601 duration. The alarm's previous trigger is left unchanged.
var ErrMalformedDuration = errors.New("malformed duration")

// Trigger returns ref shifted by the ISO 8601 duration d, e.g. "-PT15M".
// Calendar units (years, months, weeks, days) are applied in ref's
// location so a day stays a day across DST changes; clock units are
// applied as elapsed time.
func Trigger(ref time.Time, d string) (time.Time, error) {
	d = strings.TrimSpace(d)
	if d == "" {
		return time.Time{}, fmt.Errorf("%w: empty", ErrMalformedDuration)
	}
	dur, err := duration.Parse(d)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q: %v", ErrMalformedDuration, d, err)
	}

	for _, v := range []float64{dur.Years, dur.Months, dur.Weeks, dur.Days} {
		if v != math.Trunc(v) {
			return time.Time{}, fmt.Errorf("%w: %q: fractional calendar unit", ErrMalformedDuration, d)
		}
	}

	sign := 1
	if dur.Negative {
		sign = -1
	}
	t := ref.AddDate(
		sign*int(dur.Years),
		sign*int(dur.Months),
		sign*(int(dur.Weeks)*7+int(dur.Days)),
	)
	clock := time.Duration(dur.Hours*float64(time.Hour)) +
		time.Duration(dur.Minutes*float64(time.Minute)) +
		time.Duration(dur.Seconds*float64(time.Second))
	return t.Add(time.Duration(sign) * clock), nil
}
