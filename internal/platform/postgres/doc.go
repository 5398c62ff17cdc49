// Package postgres provides PostgreSQL backends for the task journal and the
// try-on status tracker. Queries go through database/sql with the pgx
// driver; the schema is managed by goose migrations embedded in the binary.
package postgres
