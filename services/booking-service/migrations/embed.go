// Package migrations embeds the booking-service schema for libs/db.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
