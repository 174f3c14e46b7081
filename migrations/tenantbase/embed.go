// Package tenantbase embeds the baseline migration set applied to every
// tenant schema at provisioning time. The set is identical across tenants.
package tenantbase

import "embed"

//go:embed *.sql
var FS embed.FS
