// Package store holds the pieces shared by the SQL-backed persistence
// adapters: the DBTX abstraction over *sql.DB and *sql.Tx, the
// transaction helper, and the error vocabulary adapters map driver errors to.
package store
