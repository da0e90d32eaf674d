// Package clock centralises wall-clock reads so expiry and rule bounds agree on UTC.
package clock

import "time"

// NowFunc is the package time source; tests replace it to pin deadlines.
var NowFunc = func() time.Time { return time.Now().UTC() }

// Now returns the current UTC instant from NowFunc.
func Now() time.Time { return NowFunc() }
