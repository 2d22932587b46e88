package timezone

import "time"

// Location is the forum's clock. The forum renders every date in US
// Central regardless of where the viewer is, so scraped dates must be
// parsed against this and not the machine's local zone.
var Location *time.Location

func init() {
	var err error
	Location, err = time.LoadLocation("America/Chicago")
	if err != nil {
		panic(err)
	}
}

// Now returns the current time on the forum's clock.
func Now() time.Time {
	return time.Now().In(Location)
}
