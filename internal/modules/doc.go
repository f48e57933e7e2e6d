// Package modules resolves game module code for execution contexts.
//
// A module path such as "games/fight" maps to a JavaScript file. Sources can
// be combined: a CachedSource over a Chain of a DirSource and an HTTPSource
// serves local games first, falls back to a remote host, and fetches each
// module once per process however many contexts ask for it.
package modules
