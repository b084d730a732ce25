package api

// Config holds server configuration.
type Config struct {
	Port              int
	RateLimitRequests int        // Requests per minute (0 = disabled)
	RateLimitBurst    int        // Burst size
	Auth              AuthConfig // Authentication configuration
	TLS               TLSConfig  // TLS configuration
	AllowedOrigins    []string   // CORS allowed origins (empty = allow all)
	DefaultLimit      int        // Default result count for search endpoints
	MaxLimit          int        // Hard cap on client-requested result counts
	MaxQueryBytes     int        // Hard cap on query length
}

// TLSConfig holds TLS/HTTPS configuration.
type TLSConfig struct {
	Enabled  bool   // Enable HTTPS
	CertFile string // Path to TLS certificate file
	KeyFile  string // Path to TLS private key file
}

// withDefaults fills unset limits.
func (c Config) withDefaults() Config {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = 20
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = 100
	}
	if c.MaxQueryBytes <= 0 {
		c.MaxQueryBytes = 4096
	}
	return c
}
