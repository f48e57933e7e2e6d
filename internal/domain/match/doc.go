// Package match composes tournaments out of seeded sub-matches.
//
// A Node is one level of tournament structure. Given a root Random and a
// team roster, Run derives one child seed per sub-match (strictly in
// ascending index order), picks the teams for that sub-match with the
// configured shuffle policies, and submits the pair to a Scheduler. The
// scheduler runs at most N sub-matches at a time through a caller-supplied
// SubHandler and returns every Result in submission order.
//
// Nodes nest: NodeHandler turns a node into a SubHandler, so a tournament
// node can run match nodes which in turn run single games.
//
// Reproducibility: seed derivation and shuffling are synchronous and happen
// on the caller's goroutine before a task is queued. Completion order is
// free; results are re-sorted before they are exposed.
//
// Errors: a SubHandler error is recorded on that task's Result and siblings
// continue. Errors wrapped with Fatal abort the whole run: queued tasks are
// dropped, running ones are cancelled, and Wait returns the error.
// Configuration problems are reported by New as *ConfigError before any
// task is scheduled.
package match
