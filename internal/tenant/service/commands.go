package service

import "strings"

// RegisterTenantCommand carries everything captured on the public sign-up
// form. Transport-level validation happens in the handler; the service
// re-checks the domain invariants it cares about.
type RegisterTenantCommand struct {
	Name         string
	Subdomain    string
	PICName      string
	PICEmail     string
	PICPhone     string
	Province     string
	City         string
	Address      string
	Password     string
	DocumentURLs []string
}

// Normalize trims whitespace and lowercases the subdomain so lookups and
// uniqueness checks are canonical.
func (c *RegisterTenantCommand) Normalize() {
	c.Name = strings.TrimSpace(c.Name)
	c.Subdomain = strings.ToLower(strings.TrimSpace(c.Subdomain))
	c.PICName = strings.TrimSpace(c.PICName)
	c.PICEmail = strings.ToLower(strings.TrimSpace(c.PICEmail))
	c.PICPhone = strings.TrimSpace(c.PICPhone)
	c.Province = strings.TrimSpace(c.Province)
	c.City = strings.TrimSpace(c.City)
	c.Address = strings.TrimSpace(c.Address)
}
