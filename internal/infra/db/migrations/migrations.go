// Package migrations embeds the canonical schema, applied by goose for both
// the postgres and sqlite drivers.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
