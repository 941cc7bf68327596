// Package alarm contains the core domain types of the health evaluator.
//
// It defines Alarm (an immutable snapshot of an alarm definition) and
// HistoryEvent (one entry of an alarm's history log) together with the
// decoding of the state payloads embedded in StateUpdate entries.
// Optional fields are pointers: nil means the value was not configured.
package alarm
