/*
Package store persists byte-level Markov models in SQLite.

Each model is stored under a unique name as a row in markov_models, its
windows (in first-seen order) in markov_windows, and its transitions with
their frequencies in markov_chains. Saving a model under an existing name
replaces it and assigns a new ULID revision.

The pure-Go modernc.org/sqlite driver is used by default; build with
-tags cgo_sqlite to use github.com/mattn/go-sqlite3 instead. Models can be
exported to and imported from JSON or MessagePack.
*/
package store
