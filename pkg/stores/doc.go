// Package stores provides the run journal: a SQLite history of wizard runs and
// the step attempts within them. The journal is an audit aid only; resuming a
// run reads the settings file, never the journal.
package stores
