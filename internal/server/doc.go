// Package server implements the HTTP layer of the file vault: session
// authentication, folder and file handlers, the object storage adapter,
// and the middleware chain. It wires together the database, the MinIO
// client and the route table, and provides lifecycle helpers used by
// tests and the production binary.
package server
