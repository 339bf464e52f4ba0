package cache

import "strings"

// ListKey is the key for one collection read by one principal in one account.
func ListKey(collection, accountID, principal string) string {
	return ListPrefix(collection, accountID) + principal
}

// ListPrefix covers every principal's copy of a collection in an account.
func ListPrefix(collection, accountID string) string {
	return strings.Join([]string{"list", collection, accountID, ""}, ":")
}

// ActivitiesCollection is the cache name of the activity feed.
const ActivitiesCollection = "activities"
