package publisher

import "strings"

// IsAlreadyPosted reports whether the newest post already carries the source
// title. Containment tolerates the "<label> | " prefix on posted titles.
func IsAlreadyPosted(mostRecentPostTitle, sourceTitle string) bool {
	return strings.Contains(mostRecentPostTitle, sourceTitle)
}
