// Package migrations embeds the goose SQL migrations so binaries can apply
// them at startup without shipping files alongside the image.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
