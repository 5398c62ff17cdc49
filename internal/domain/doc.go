// Package domain contains the entities shared by the pipeline, the status
// stores and the HTTP layer: try-on task records with their monotonic
// status rules, garment categories and the validation error type.
package domain
