package storage

import (
	"strconv"
	"time"
)

// Visit/user-data tracking keys within a namespace.
const (
	keyVisitCount = "visit_count"
	keyLastVisit  = "last_visit"
	keyUserData   = "user_data"
)

// RecordVisit increments the stored visit counter and stamps the visit
// time. It returns the new count. Storage failures degrade to count 1.
func RecordVisit(ns *Namespace) int {
	count := 1
	if raw, ok := ns.Get(keyVisitCount); ok {
		if prev, err := strconv.Atoi(raw); err == nil {
			count = prev + 1
		}
	}
	_ = ns.Set(keyVisitCount, strconv.Itoa(count))
	_ = ns.Set(keyLastVisit, time.Now().Format(time.RFC3339))
	return count
}

// LastVisit returns the previous visit time, if any.
func LastVisit(ns *Namespace) (time.Time, bool) {
	raw, ok := ns.Get(keyLastVisit)
	if !ok {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// SetUserData stores an opaque user-data blob synced by the agent.
func SetUserData(ns *Namespace, data string) error {
	return ns.Set(keyUserData, data)
}

// UserData returns the stored user-data blob, if any.
func UserData(ns *Namespace) (string, bool) {
	return ns.Get(keyUserData)
}
