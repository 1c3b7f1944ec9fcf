// Package fixture serves canned metadata responses from a YAML file. It is
// used for demos, local development and tests that need envelope variants a
// live database never produces.
package fixture

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the top-level fixture document.
//
//	connections:
//	  warehouse:
//	    tables:
//	      freshness: {status: fresh, age_seconds: 12}
//	      body: {metadata: {tables: [...]}}
//	    statistics:
//	      error: "profiling timed out"
type File struct {
	Connections map[string]Connection `yaml:"connections"`
}

// Connection holds the three responses for one connection ID.
type Connection struct {
	Tables     *Response `yaml:"tables"`
	Columns    *Response `yaml:"columns"`
	Statistics *Response `yaml:"statistics"`
}

// Response is one canned fetch result. A non-empty Error makes the fetch
// fail with that message.
type Response struct {
	Body      any        `yaml:"body"`
	Freshness *Freshness `yaml:"freshness"`
	Error     string     `yaml:"error"`
	// DelayMS delays the response, honoring context cancellation.
	DelayMS int `yaml:"delay_ms"`
}

// Freshness overrides the freshness derived from the body.
type Freshness struct {
	Status     string `yaml:"status"`
	AgeSeconds int64  `yaml:"age_seconds"`
}

// Load reads and parses a fixture file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture file: %w", err)
	}
	return Parse(data)
}

// Parse parses fixture YAML.
func Parse(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture file: %w", err)
	}
	if len(f.Connections) == 0 {
		return nil, fmt.Errorf("fixture file defines no connections")
	}
	return &f, nil
}
