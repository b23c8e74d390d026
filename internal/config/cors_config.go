package config

import "strings"

// AllowedOrigins is the set of origins the browser-facing endpoints
// accept cross-origin requests from. A "*" entry allows any origin,
// in which case responses never include credentials.
type AllowedOrigins map[string]struct{}

func (a AllowedOrigins) IsAllowedOrigin(origin string) bool {
	_, ok := a[origin]
	return ok
}

func (a AllowedOrigins) String() string {
	var origins []string
	for k := range a {
		origins = append(origins, k)
	}
	return strings.Join(origins, ", ")
}

// GetAllowedOrigins returns the configured origin set. Validate must
// have run first; Load does this.
func (c *Config) GetAllowedOrigins() AllowedOrigins {
	return c.allowedOrigins
}

func (c *Config) GetAllowedMethods() string {
	return "GET, POST, OPTIONS"
}

func (c *Config) GetAllowedHeaders() string {
	return "Content-Type, Authorization"
}
