package scheduler

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// cronFieldRe mirrors SchedulerTasks.is_cron_format's validation regex:
// minute hour day-of-month month day-of-week, with an optional year.
var cronFieldRe = regexp.MustCompile(
	`^(\*|([0-5]?\d))(\s+(\*|([01]?\d|2[0-3])))(\s+(\*|([1-9]|[12]\d|3[01])))(\s+(\*|(1[0-2]|0?[1-9])))(\s+(\*|([0-6]|\?)))(\s+(\*|\d{4}))?$`,
)

// IsCronFormat reports whether detail looks like a 5- or 6-field cron
// expression: either the plain form is_cron_format's regex accepts, or
// one whose first five fields parse with the lists, ranges and steps
// NextRun understands.
func IsCronFormat(detail string) bool {
	detail = strings.TrimSpace(detail)
	if cronFieldRe.MatchString(detail) {
		return true
	}
	if n := len(strings.Fields(detail)); n != 5 && n != 6 {
		return false
	}
	_, err := parseSpec(detail)
	return err == nil
}

type fieldSet struct {
	all    bool
	values map[int]bool
}

func (f fieldSet) match(v int) bool {
	return f.all || f.values[v]
}

// parseField parses one cron field (comma lists, ranges, steps) over
// [min,max], the way croniter does for each of minute/hour/dom/month/dow.
func parseField(raw string, min, max int) (fieldSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "*" || raw == "?" {
		return fieldSet{all: true}, nil
	}
	values := make(map[int]bool)
	for _, part := range strings.Split(raw, ",") {
		step := 1
		base := part
		if idx := strings.Index(part, "/"); idx >= 0 {
			base = part[:idx]
			s, err := strconv.Atoi(part[idx+1:])
			if err != nil || s <= 0 {
				return fieldSet{}, fmt.Errorf("invalid cron step %q", part)
			}
			step = s
		}
		lo, hi := min, max
		if base != "*" {
			if idx := strings.Index(base, "-"); idx >= 0 {
				l, err1 := strconv.Atoi(base[:idx])
				h, err2 := strconv.Atoi(base[idx+1:])
				if err1 != nil || err2 != nil {
					return fieldSet{}, fmt.Errorf("invalid cron range %q", base)
				}
				lo, hi = l, h
			} else {
				n, err := strconv.Atoi(base)
				if err != nil {
					return fieldSet{}, fmt.Errorf("invalid cron value %q", base)
				}
				lo, hi = n, n
			}
		}
		for v := lo; v <= hi; v += step {
			values[v] = true
		}
	}
	return fieldSet{values: values}, nil
}

// spec is a parsed cron expression.
type spec struct {
	minute, hour, dom, month, dow fieldSet
}

func parseSpec(expr string) (spec, error) {
	fields := strings.Fields(strings.TrimSpace(expr))
	if len(fields) < 5 {
		return spec{}, fmt.Errorf("invalid cron expression %q", expr)
	}
	minute, err := parseField(fields[0], 0, 59)
	if err != nil {
		return spec{}, err
	}
	hour, err := parseField(fields[1], 0, 23)
	if err != nil {
		return spec{}, err
	}
	dom, err := parseField(fields[2], 1, 31)
	if err != nil {
		return spec{}, err
	}
	month, err := parseField(fields[3], 1, 12)
	if err != nil {
		return spec{}, err
	}
	dow, err := parseField(fields[4], 0, 6)
	if err != nil {
		return spec{}, err
	}
	return spec{minute: minute, hour: hour, dom: dom, month: month, dow: dow}, nil
}

// NextRun computes the next time at or after from+1 minute that
// matches expr, mirroring croniter.get_next's minute-granularity walk.
func NextRun(expr string, from time.Time) (time.Time, error) {
	s, err := parseSpec(expr)
	if err != nil {
		return time.Time{}, err
	}
	t := from.Truncate(time.Minute).Add(time.Minute)
	// Bounded walk: at most ~4 years of minutes, matching croniter's
	// practical search horizon for a well-formed expression.
	limit := t.Add(4 * 365 * 24 * time.Hour)
	for t.Before(limit) {
		if s.month.match(int(t.Month())) && s.dom.match(t.Day()) &&
			s.dow.match(int(t.Weekday())) && s.hour.match(t.Hour()) &&
			s.minute.match(t.Minute()) {
			return t, nil
		}
		t = t.Add(time.Minute)
	}
	return time.Time{}, fmt.Errorf("no matching time found for cron expression %q", expr)
}
