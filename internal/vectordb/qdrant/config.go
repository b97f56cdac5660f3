package qdrant

import (
	"fmt"
	"strings"
	"time"
)

// Config holds connection settings for a Qdrant deployment. URL points at the
// HTTP API (cloud deployments include the port in the URL).
type Config struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// DefaultConfig returns settings for a local Qdrant instance.
func DefaultConfig() *Config {
	return &Config{
		URL:     "http://localhost:6333",
		Timeout: 30 * time.Second,
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("qdrant URL is required")
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("qdrant URL must start with http:// or https://, got %q", c.URL)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("qdrant timeout must be positive")
	}
	return nil
}

// baseURL returns the URL without a trailing slash.
func (c *Config) baseURL() string {
	return strings.TrimRight(c.URL, "/")
}

// Distance is the similarity metric for a collection.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceDot    Distance = "Dot"
	DistanceEuclid Distance = "Euclid"
)

// CollectionConfig describes a collection to create.
type CollectionConfig struct {
	Name       string
	VectorSize int
	Distance   Distance
}

// Validate checks the collection configuration.
func (c *CollectionConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("collection name is required")
	}
	if c.VectorSize <= 0 {
		return fmt.Errorf("vector size must be positive, got %d", c.VectorSize)
	}
	if c.Distance == "" {
		return fmt.Errorf("distance metric is required")
	}
	return nil
}

// SearchParams configures a similarity search.
type SearchParams struct {
	Limit       int
	WithPayload bool
}
