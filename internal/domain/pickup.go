package domain

const (
	// DefaultPickupStart is used when no cart item carries a start time.
	DefaultPickupStart = "00:00"
	// DefaultPickupEnd is used when no cart item carries an end time.
	DefaultPickupEnd = "19:00"
)

// AggregatePickupWindow collapses per-item pickup windows into a single
// window for the whole order: the start comes from the first item, the end is
// the latest end time among all items. Times are "HH:MM" strings compared
// lexicographically, which matches chronological order within one day.
// Windows crossing midnight are not supported.
func AggregatePickupWindow(items []CartItem) (start, end string) {
	start = DefaultPickupStart
	end = DefaultPickupEnd

	if len(items) == 0 {
		return start, end
	}

	if s := items[0].Snapshot.PickupStart; s != "" {
		start = s
	}

	latest := ""
	for _, item := range items {
		if e := item.Snapshot.PickupEnd; e != "" && e > latest {
			latest = e
		}
	}
	if latest != "" {
		end = latest
	}

	return start, end
}
