// Package mysql provides repositories and data access helpers backed by MySQL.
// It encapsulates connection pooling, schema initialization, and strongly typed
// queries for persisting swap execution history.
package mysql
