// Package control embeds the control-plane schema migration set.
package control

import "embed"

//go:embed *.sql
var FS embed.FS
