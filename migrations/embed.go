// Package migrations embeds the SQL migration files so goose can apply them
// at server start and in integration tests.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
