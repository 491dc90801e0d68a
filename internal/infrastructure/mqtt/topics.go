package mqtt

import "strings"

// DefaultTopicPrefix is the root of every store topic when none is configured.
const DefaultTopicPrefix = "ent"

// Topics builds the store's topic names under one prefix:
//
//	{prefix}/snapshot/{family}/{action}   one message per committed change
//	{prefix}/system/status                retained online/offline status
//
// The zero value uses DefaultTopicPrefix.
type Topics struct {
	Prefix string
}

func (t Topics) prefix() string {
	if t.Prefix == "" {
		return DefaultTopicPrefix
	}
	return t.Prefix
}

// SnapshotChange returns the topic a change is published on,
// e.g. ent/snapshot/vehicle/save.
func (t Topics) SnapshotChange(family, action string) string {
	return t.prefix() + "/snapshot/" + family + "/" + action
}

// SystemStatus returns the retained status topic, e.g. ent/system/status.
func (t Topics) SystemStatus() string {
	return t.prefix() + "/system/status"
}

// AllSnapshotChanges returns the subscription pattern for every change,
// e.g. ent/snapshot/+/+.
func (t Topics) AllSnapshotChanges() string {
	return t.SnapshotChange("+", "+")
}

// ParseChange splits a change topic into family and action. It reports
// false for topics outside this prefix and for the status topic.
func (t Topics) ParseChange(topic string) (family, action string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.prefix()+"/snapshot/")
	if !found {
		return "", "", false
	}
	family, action, found = strings.Cut(rest, "/")
	if !found || family == "" || action == "" || strings.Contains(action, "/") {
		return "", "", false
	}
	return family, action, true
}
