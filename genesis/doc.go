// Package genesis resolves and loads the pool bootstrap transactions that
// define a ledger's validator membership.
//
// A genesis file is newline-delimited JSON, one NODE transaction per line.
// Sources are either local paths or http(s) URLs; see Resolve.
package genesis
