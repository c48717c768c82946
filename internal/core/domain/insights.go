package domain

import (
	"sort"
	"time"
)

// ExpiryDay groups the vouchers expiring on one UTC calendar day.
type ExpiryDay struct {
	Date     time.Time // Midnight UTC
	Count    int
	Value    int64 // Sum of original values, minor units
	Vouchers []Voucher
}

// ExpiryInsights summarizes the tradable inventory expiring in [From, To).
type ExpiryInsights struct {
	From       time.Time
	To         time.Time
	Total      int
	TotalValue int64
	Days       []ExpiryDay
}

// SummarizeExpiry buckets vouchers by expiry day. Vouchers outside
// [from, to) are ignored. Days come out in calendar order; days with no
// expiring voucher are left out.
func SummarizeExpiry(vouchers []Voucher, from, to time.Time) ExpiryInsights {
	out := ExpiryInsights{From: from, To: to, Days: []ExpiryDay{}}
	index := make(map[time.Time]int)

	for _, v := range vouchers {
		if v.ExpiryDate.Before(from) || !v.ExpiryDate.Before(to) {
			continue
		}
		day := v.ExpiryDate.UTC().Truncate(24 * time.Hour)
		i, ok := index[day]
		if !ok {
			i = len(out.Days)
			index[day] = i
			out.Days = append(out.Days, ExpiryDay{Date: day})
		}
		out.Days[i].Count++
		out.Days[i].Value += v.OriginalValue
		out.Days[i].Vouchers = append(out.Days[i].Vouchers, v)
		out.Total++
		out.TotalValue += v.OriginalValue
	}

	sort.Slice(out.Days, func(i, j int) bool { return out.Days[i].Date.Before(out.Days[j].Date) })
	for i := range out.Days {
		vs := out.Days[i].Vouchers
		sort.Slice(vs, func(a, b int) bool { return vs[a].ExpiryDate.Before(vs[b].ExpiryDate) })
	}
	return out
}
