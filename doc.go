/*
Package vitrine is a fine-grained reactivity engine: a mutable,
deeply-nested source of truth that hands out cheap immutable snapshots
and tells each consumer whether the paths it actually read have
changed.

State is declared through a Node, a wrapped container whose reads and
writes are observed.  Every mutation bumps a per-node version counter
and propagates the bump to every ancestor that holds the mutated
child, so staleness checks are a single integer comparison.

Snapshots

Snapshot() produces an immutable copy of a node's value tree.  Building
one after a localized mutation costs roughly the depth of the change,
not the size of the tree: subtrees whose versions are unchanged are
shared by reference with the previous snapshot.  Two snapshots taken
at the same version are the same reference, so upstream comparisons
can short-circuit on identity.

Change detection

Track() wraps a snapshot in a read-instrumented view that records, per
consumer, which keys were accessed at every depth.  Changed() then
answers "did anything this consumer read differ between these two
snapshots", falling back conservatively to "changed" whenever a deep
comparison cannot be completed safely.

Notification

Subscribe() registers a callback on a node, fired after any mutation
of the node or its descendants.  The default delivery mode coalesces
all mutations within one Batch() turn into at most one callback per
subscriber; immediate mode fires synchronously per operation.

Opaque values

Opaque() marks a value to be stored and returned by identity: never
wrapped, never copied into snapshots, never diffed recursively.  Use
it for externally-owned objects whose identity must survive the trip
through a snapshot.

Inspiration

The snapshot-and-affected-paths model follows the proxy-based
state libraries of the JavaScript world; the structural sharing and
content hashing follow persistent data structures in the Clojure and
Haskell tradition, where immutable views make systems easier to
reason about and cheap to compare.
*/
package vitrine
