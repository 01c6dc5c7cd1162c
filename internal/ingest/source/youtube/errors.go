package youtube

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"

	"github.com/janovincze/commentsync/internal/retry"
)

// Reasons that mean the video will never yield comments.
var noCommentsReasons = map[string]bool{
	"commentsDisabled": true,
	"videoNotFound":    true,
}

// Reasons that mean the project quota is spent until it resets.
var quotaReasons = map[string]bool{
	"quotaExceeded":      true,
	"dailyLimitExceeded": true,
}

// Reasons that mean the caller is going too fast and may try again.
var rateLimitReasons = map[string]bool{
	"rateLimitExceeded":     true,
	"userRateLimitExceeded": true,
}

func hasReason(gerr *googleapi.Error, reasons map[string]bool) bool {
	for _, item := range gerr.Errors {
		if reasons[item.Reason] {
			return true
		}
	}
	return false
}

// hasNoComments reports whether err says the video permanently has no comments.
func hasNoComments(err error) bool {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return false
	}
	return hasReason(gerr, noCommentsReasons)
}

// classify marks API errors for the retryer. Both quota and rate limits come
// back as 403, so the reason decides. Network errors stay unclassified and
// are retried.
func classify(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}

	switch {
	case hasReason(gerr, quotaReasons):
		return retry.Permanent(err)
	case hasReason(gerr, rateLimitReasons),
		gerr.Code == http.StatusTooManyRequests,
		gerr.Code >= 500:
		return retry.After(err, retryAfter(gerr.Header, time.Now()))
	default:
		return retry.Permanent(err)
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
