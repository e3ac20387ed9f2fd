// Package appfs embeds the SQL migrations and email templates into the binary.
package appfs

import "embed"

//go:embed migrations/*.sql templates/email/* common-passwords.txt
var FS embed.FS

const (
	MigrationsDir     = "migrations"
	EmailTemplatesDir = "templates/email"

	CommonPasswordsFile = "common-passwords.txt"
)
