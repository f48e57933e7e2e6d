// Package utils holds content hashing and input validation shared by the
// ingest, API and store layers.
package utils
