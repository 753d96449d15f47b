// Package config loads, normalizes, and validates the podscribe TOML
// configuration. The resulting Config value is constructed once at startup
// and passed by reference to the pipeline and every adapter; components
// never read the environment or the config file themselves.
package config
