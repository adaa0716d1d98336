package tracker

import (
	"sort"
	"time"
)

// Statistics is the dashboard rollup computed from a user's applications. It
// is a pure projection: recomputed on every read, never stored.
type Statistics struct {
	Total              int           `json:"total"`
	Applied            int           `json:"applied"`
	UnderReview        int           `json:"under_review"`
	Interviews         int           `json:"interviews"`
	Offers             int           `json:"offers"`
	Rejected           int           `json:"rejected"`
	Withdrawn          int           `json:"withdrawn"`
	UpcomingInterviews []Application `json:"upcoming_interviews"`
}

// Summarize computes the dashboard statistics over the provided applications.
// Interviews counts both scheduled and completed stages. UpcomingInterviews
// holds applications with a scheduled interview strictly in the future,
// soonest first, ties broken by application id for determinism.
func Summarize(applications []Application, now time.Time) Statistics {
	stats := Statistics{
		Total:              len(applications),
		UpcomingInterviews: make([]Application, 0),
	}

	for _, application := range applications {
		switch application.Status {
		case StatusApplied:
			stats.Applied++
		case StatusUnderReview:
			stats.UnderReview++
		case StatusInterviewScheduled, StatusInterviewCompleted:
			stats.Interviews++
		case StatusOfferReceived:
			stats.Offers++
		case StatusRejected:
			stats.Rejected++
		case StatusWithdrawn:
			stats.Withdrawn++
		}
		if upcomingInterview(application, now) {
			stats.UpcomingInterviews = append(stats.UpcomingInterviews, application)
		}
	}

	sort.Slice(stats.UpcomingInterviews, func(i, j int) bool {
		left, right := stats.UpcomingInterviews[i], stats.UpcomingInterviews[j]
		if *left.InterviewAtSeconds != *right.InterviewAtSeconds {
			return *left.InterviewAtSeconds < *right.InterviewAtSeconds
		}
		return left.ApplicationID < right.ApplicationID
	})

	return stats
}

// upcomingInterview reports whether the application has a scheduled interview
// strictly in the future.
func upcomingInterview(application Application, now time.Time) bool {
	if application.Status != StatusInterviewScheduled {
		return false
	}
	if application.InterviewAtSeconds == nil {
		return false
	}
	return *application.InterviewAtSeconds > now.UTC().Unix()
}
