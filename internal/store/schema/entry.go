package schema

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // zone names must resolve on hosts without a zoneinfo database
)

// Entry kinds stored in entry.kind.
const (
	KindJournal = "JOURNAL"
	KindNote    = "NOTE"
	KindTodo    = "TODO"
)

// TZAllDay marks a date column as an all-day value. A NULL or empty
// timezone column means floating time.
const TZAllDay = "ALLDAY"

// Alarm trigger anchors stored in alarm.trigger_relative_to.
const (
	RelativeToStart = "START"
	RelativeToEnd   = "END"
)

// Relationship types stored in relatedto.reltype.
const (
	RelTypeParent  = "PARENT"
	RelTypeChild   = "CHILD"
	RelTypeSibling = "SIBLING"
)

// DefaultLocalAccountType is the reserved account type of the device-local,
// never synchronized account.
const DefaultLocalAccountType = "LOCAL"

// RecurrenceColumns are the entry columns whose change requires the
// derived instances of a master entry to be regenerated.
var RecurrenceColumns = []ColumnID{
	ColRRule, ColExDate, ColRDate,
	ColDTStart, ColDTStartTZ, ColDue, ColDueTZ,
}

// SchedulingColumns are the entry columns alarm triggers are anchored to.
var SchedulingColumns = []ColumnID{
	ColDTStart, ColDTStartTZ, ColDue, ColDueTZ,
}

// AlarmTriggerColumns are the alarm columns that define a relative trigger.
var AlarmTriggerColumns = []ColumnID{
	ColTriggerRelativeTo, ColTriggerRelativeDuration, ColEntryID,
}

// Location resolves a timezone column value. Floating and all-day values
// are evaluated in UTC, as are unknown zone names.
func Location(tz string) *time.Location {
	if tz == "" || tz == TZAllDay {
		return time.UTC
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FromMillis converts a stored Unix millisecond timestamp into a time in
// the location named by tz.
func FromMillis(ms int64, tz string) time.Time {
	return time.UnixMilli(ms).In(Location(tz))
}

// Millis converts a time into the stored Unix millisecond form.
func Millis(t time.Time) int64 {
	return t.UnixMilli()
}

// ParseDateList parses a comma separated list of Unix millisecond
// timestamps as stored in entry.exdate and entry.rdate. Empty items are
// ignored.
func ParseDateList(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ms, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid date list item %q: %w", part, err)
		}
		out = append(out, ms)
	}
	return out, nil
}

// FormatDateList is the inverse of ParseDateList. Output is sorted.
func FormatDateList(ms []int64) string {
	sorted := append([]int64(nil), ms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	parts := make([]string, len(sorted))
	for i, v := range sorted {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return strings.Join(parts, ",")
}
