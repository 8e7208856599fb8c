package model

import (
	"strconv"
	"time"
)

// Recency buckets for the announcement feed, newest first.
const (
	BucketToday            = "Today"
	BucketYesterday        = "Yesterday"
	BucketThisWeek         = "This Week"
	BucketEarlierThisMonth = "Earlier This Month"
	BucketEarlierThisYear  = "Earlier This Year"
)

// Bucket classifies the announcement's creation time relative to now.
// "This Week" covers the last seven calendar days excluding today and
// yesterday; month and year buckets are calendar-based; anything older
// than the current year is labelled with its year.
func (a *Announcement) Bucket(now time.Time) string {
	day := DayOf(a.CreatedAt)
	today := DayOf(now)

	switch {
	case !day.Before(today):
		return BucketToday
	case day.Equal(today.AddDate(0, 0, -1)):
		return BucketYesterday
	case !day.Before(today.AddDate(0, 0, -7)):
		return BucketThisWeek
	case day.Year() == today.Year() && day.Month() == today.Month():
		return BucketEarlierThisMonth
	case day.Year() == today.Year():
		return BucketEarlierThisYear
	default:
		return strconv.Itoa(day.Year())
	}
}

// AnnouncementGroup is one section of the feed.
type AnnouncementGroup struct {
	Label         string
	Announcements []Announcement
}

// GroupAnnouncements splits announcements into recency sections. Input is
// expected newest-first; group order follows first appearance, which for
// sorted input yields Today → Yesterday → ... → oldest year.
func GroupAnnouncements(anns []Announcement, now time.Time) []AnnouncementGroup {
	var groups []AnnouncementGroup
	index := make(map[string]int)
	for _, a := range anns {
		label := a.Bucket(now)
		i, ok := index[label]
		if !ok {
			i = len(groups)
			index[label] = i
			groups = append(groups, AnnouncementGroup{Label: label})
		}
		groups[i].Announcements = append(groups[i].Announcements, a)
	}
	return groups
}
