// Package http exposes tournaments over a JSON API.
//
// Runs are started with POST /tournaments and execute in the background;
// clients poll the run or follow its websocket stream. Entries may be sent
// inline or, when absent, are loaded from the configured entry sources.
package http
