// Package feed defines the fixed set of league feed types, their item
// variants, content fingerprints and the per-league cursor records that
// feed sync advances.
package feed
