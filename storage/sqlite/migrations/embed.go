/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package migrations

import "embed"

// FS contains the embedded SQLite migrations for room storage.
//
//go:embed *.sql
var FS embed.FS
