// Package game runs one sub-match inside a fresh execution context.
//
// The Runner's Handle method is the match.SubHandler at the bottom of a
// tournament. For each task it spawns a sandbox, loads the game module named
// by the definition's gameType and sends it a begin message carrying the
// seed, the teams with their entries' code, and the game configuration. The
// module answers with progress messages and a final complete message:
//
//	exports.handle = function (msg, post) {
//		// msg.type === 'begin'
//		post({ type: 'progress', value: 0.5 });
//		post({ type: 'complete', scores: [{ teamId: 't1', score: 3 }] });
//	};
//
// Failures inside the context become task errors. Only a failure to create
// the context is tournament-fatal.
package game
