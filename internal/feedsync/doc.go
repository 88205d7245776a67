// Package feedsync detects new feed items per league, announces them to
// matching watchers through the outbox and advances per-league cursors.
//
// One Engine serves every feed type. Types differ only in their strategy:
// canonical ordering, cursor shape and rendering.
package feedsync
