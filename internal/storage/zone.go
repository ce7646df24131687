package storage

import (
	"fmt"
	"time"
)

// zoneName returns what is stored in the timezone column for t. Named IANA
// zones are stored by name. Anything that cannot be reloaded by name, such as
// the nameless fixed zone of a time parsed from "-05:00" or the process-local
// zone, is stored as its UTC offset at t.
func zoneName(t time.Time) string {
	name := t.Location().String()
	if name != "" && name != "Local" {
		if loc, err := time.LoadLocation(name); err == nil {
			_, want := t.Zone()
			if _, got := t.In(loc).Zone(); got == want {
				return name
			}
		}
	}

	_, offset := t.Zone()
	sign := '+'
	if offset < 0 {
		sign = '-'
		offset = -offset
	}
	return fmt.Sprintf("%c%02d:%02d", sign, offset/3600, offset%3600/60)
}

// zoneLocation reverses zoneName. Unknown names fall back to UTC.
func zoneLocation(name string) *time.Location {
	if len(name) == len("+00:00") && (name[0] == '+' || name[0] == '-') {
		var hours, minutes int
		if _, err := fmt.Sscanf(name[1:], "%02d:%02d", &hours, &minutes); err == nil {
			offset := hours*3600 + minutes*60
			if name[0] == '-' {
				offset = -offset
			}
			return time.FixedZone("", offset)
		}
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}
