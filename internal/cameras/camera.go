// Package cameras is the registry of camera endpoints the viewer can open.
package cameras

import "strings"

// Camera is a registered endpoint. ID is assigned by the registry.
type Camera struct {
	ID           int64  `toml:"id" json:"id"`
	Name         string `toml:"name" json:"name"`
	URL          string `toml:"url" json:"url"`
	Username     string `toml:"username,omitempty" json:"username,omitempty"`
	Password     string `toml:"password,omitempty" json:"-"`
	LastSnapshot string `toml:"last_snapshot,omitempty" json:"last_snapshot,omitempty"`
}

// Validate checks the fields a user must supply.
func (c Camera) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name is required")
	}
	if strings.TrimSpace(c.URL) == "" {
		return invalid("url is required")
	}
	return nil
}
