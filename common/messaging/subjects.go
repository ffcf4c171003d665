package messaging

import "strings"

// Subjects follow {domain}.{resource}.{action}.
const (
	// Event lifecycle notifications published by the sync engine.
	SubjectEventsSubmitted = "ddocs.events.submitted"
	SubjectEventsResolved  = "ddocs.events.resolved"
	SubjectEventsFailed    = "ddocs.events.failed"

	// SubjectSyncTriggerPrefix is followed by a trigger name ("submit", "resolve").
	SubjectSyncTriggerPrefix = "ddocs.sync.trigger"
)

// QueueSyncWorkers groups workers so a remote trigger runs on one of them.
const QueueSyncWorkers = "ddocs-sync-workers"

// SyncTriggerSubject returns the subject that fires trigger name.
// Example: ddocs.sync.trigger.submit
func SyncTriggerSubject(name string) string {
	return SubjectSyncTriggerPrefix + "." + name
}

// SyncTriggerWildcard matches every trigger subject.
func SyncTriggerWildcard() string {
	return SubjectSyncTriggerPrefix + ".*"
}

// TriggerFromSubject extracts the trigger name from a trigger subject.
// ok is false when subject is not a trigger subject.
func TriggerFromSubject(subject string) (name string, ok bool) {
	name, ok = strings.CutPrefix(subject, SubjectSyncTriggerPrefix+".")
	if !ok || name == "" || strings.Contains(name, ".") {
		return "", false
	}
	return name, true
}
