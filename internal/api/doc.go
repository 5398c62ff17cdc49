// Package api handles incoming HTTP requests: multipart parsing, mapping
// service results and errors to JSON responses, and the health probes. The
// garment work itself is delegated to the pipeline services.
package api
