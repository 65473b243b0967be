package markethours

import (
	"fmt"
	"strings"
	"time"
)

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// ParseWeekdays parses a comma-separated list such as "Mon,Tue,Wed".
// Full names ("Monday") are accepted too. Duplicates are ignored.
func ParseWeekdays(s string) ([]time.Weekday, error) {
	var out []time.Weekday
	seen := make(map[time.Weekday]bool)
	for _, part := range strings.Split(s, ",") {
		p := strings.ToLower(strings.TrimSpace(part))
		if p == "" {
			continue
		}
		if len(p) > 3 {
			p = p[:3]
		}
		wd, ok := weekdayNames[p]
		if !ok {
			return nil, fmt.Errorf("markethours: unknown weekday %q", part)
		}
		if !seen[wd] {
			seen[wd] = true
			out = append(out, wd)
		}
	}
	return out, nil
}

func dateKey(t time.Time) string {
	return t.Format("2006-01-02")
}
