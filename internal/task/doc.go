// Package task is the work queue behind the image pipeline. Submitters hand
// it a kind and a payload and receive a Handle; workers run the registered
// Handler for that kind with at-least-once delivery, a bounded retry policy
// and soft and hard time limits. Each task's first outcome is delivered to
// its Handle and later ones are discarded.
package task
