package repository

import "time"

// SinceDays 返回 now 往前 days 天的时间点（UTC）
func SinceDays(now time.Time, days int) time.Time {
	if days <= 0 {
		return now.UTC()
	}
	return now.Add(-time.Duration(days) * 24 * time.Hour).UTC()
}
