package records

import "time"

// Upload-time group labels, in display order.
const (
	GroupToday     = "Today"
	GroupYesterday = "Yesterday"
	GroupThisWeek  = "Earlier this week"
	GroupThisMonth = "Earlier this month"
	GroupOlder     = "Older"
)

// TimeGroup is a labelled bucket of experiences.
type TimeGroup struct {
	Label string       `json:"label"`
	Items []Experience `json:"items"`
}

// GroupByUploadTime buckets experiences by how long ago they were uploaded,
// relative to now in now's location. All five groups are always returned in
// display order; items keep their input order. A missing uploaded_at counts
// as now; an unparsable one lands in Older.
func GroupByUploadTime(exps []Experience, now time.Time) []TimeGroup {
	groups := []TimeGroup{
		{Label: GroupToday, Items: []Experience{}},
		{Label: GroupYesterday, Items: []Experience{}},
		{Label: GroupThisWeek, Items: []Experience{}},
		{Label: GroupThisMonth, Items: []Experience{}},
		{Label: GroupOlder, Items: []Experience{}},
	}

	yesterday := now.AddDate(0, 0, -1)
	lastWeek := now.AddDate(0, 0, -7)
	lastMonth := now.AddDate(0, -1, 0)

	for _, e := range exps {
		uploaded := parseUploadedAt(e.UploadedAt, now).In(now.Location())

		var idx int
		switch {
		case sameDay(uploaded, now):
			idx = 0
		case sameDay(uploaded, yesterday):
			idx = 1
		case uploaded.After(lastWeek):
			idx = 2
		case uploaded.After(lastMonth):
			idx = 3
		default:
			idx = 4
		}
		groups[idx].Items = append(groups[idx].Items, e)
	}
	return groups
}

func parseUploadedAt(s string, now time.Time) time.Time {
	if s == "" {
		return now
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
