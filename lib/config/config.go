package config

import (
	"fmt"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Server configuration struct
// --------------------------------------------------------------------------

// Config holds all configuration parameters for the state service. It is
// read once at startup from flags and environment; changing any value
// requires a restart.
type Config struct {
	// HTTP api settings
	Endpoint string

	// Sidecar parameters. An empty SidecarEndpoint means no sidecar is
	// configured and the service runs in in-memory-only mode.
	SidecarEndpoint string
	StoreName       string

	// Timing parameters (seconds)
	TimeoutSecond       int
	ProbeIntervalSecond int
	StartupWaitSecond   int

	// Logging configuration
	LogLevel string
}

// HasSidecar reports whether a sidecar endpoint is configured.
func (c *Config) HasSidecar() bool {
	return strings.TrimSpace(c.SidecarEndpoint) != ""
}

// Timeout returns the bounded per-request timeout for sidecar operations.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecond) * time.Second
}

// ProbeInterval returns the fixed health re-probe cadence.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.ProbeIntervalSecond) * time.Second
}

// StartupWait returns the bounded wait for the sidecar at startup.
func (c *Config) StartupWait() time.Duration {
	return time.Duration(c.StartupWaitSecond) * time.Second
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// HTTP settings
	addSection("HTTP Server")
	addField("Endpoint", c.Endpoint)

	// Sidecar settings
	addSection("State Backend")
	if c.HasSidecar() {
		addField("Sidecar Endpoint", c.SidecarEndpoint)
		addField("Store Name", c.StoreName)
		addField("Request Timeout", fmt.Sprintf("%d sec", c.TimeoutSecond))
		addField("Probe Interval", fmt.Sprintf("%d sec", c.ProbeIntervalSecond))
		addField("Startup Wait", fmt.Sprintf("%d sec", c.StartupWaitSecond))
	} else {
		addField("Sidecar Endpoint", "(none, in-memory only)")
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	return sb.String()
}
