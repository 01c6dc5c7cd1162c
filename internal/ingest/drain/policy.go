package drain

import (
	"fmt"
	"strings"
)

// FetchErrorPolicy decides what a failed page fetch means for its video.
type FetchErrorPolicy string

const (
	// PolicyRetain leaves the video's cursor untouched and holds the watermark,
	// so the next run retries from the same place.
	PolicyRetain FetchErrorPolicy = "retain"

	// PolicyAbandon ends the video's loop as if it had no further comments.
	// The watermark may advance past comments that were never read.
	PolicyAbandon FetchErrorPolicy = "abandon"
)

// ParseFetchErrorPolicy parses a policy name. Empty input yields PolicyRetain.
func ParseFetchErrorPolicy(s string) (FetchErrorPolicy, error) {
	switch FetchErrorPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyRetain:
		return PolicyRetain, nil
	case PolicyAbandon:
		return PolicyAbandon, nil
	default:
		return "", fmt.Errorf("unknown fetch error policy %q", s)
	}
}

// String returns the policy name.
func (p FetchErrorPolicy) String() string {
	return string(p)
}

// blocksWatermark reports whether a failed fetch counts against full drain.
func (p FetchErrorPolicy) blocksWatermark() bool {
	return p != PolicyAbandon
}
