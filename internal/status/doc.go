// Package status records the lifecycle of try-on tasks so that callers can
// poll for results.
//
// Every backend enforces the same rules: status only moves forward
// (pending, processing, then completed or failed), a terminal record is
// never modified again, and updates merge only the fields they set.
package status
