// Package db ships the SQL migrations of the session store.
package db

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
