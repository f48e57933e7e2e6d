// Package ingest reads tournament entries from outside sources: a directory
// of program files or a StackExchange-style answers page. Every loader
// returns entries sorted by id, with titles cleaned to plain NFC text and a
// fingerprint of the code.
package ingest
