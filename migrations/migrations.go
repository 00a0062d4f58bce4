// Package migrations embeds the tenant schema migrations so the server binary
// and the integration tests apply the same files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
