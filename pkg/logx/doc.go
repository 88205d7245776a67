// Package logx configures leaguewatch's structured logging.
//
// A small wrapper (logx.Logger) sits on top of zerolog to keep:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional chat alert sink (min-level + rate limiting)
package logx
