package license

import "time"

// Clock abstracts the current time for testability. Production code
// injects SystemClock; tests inject a fixed or stepping fake.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock reading the process-local time
type SystemClock struct{}

// Now returns the current time
func (SystemClock) Now() time.Time { return time.Now() }
