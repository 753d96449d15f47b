// Package services defines the shared error taxonomy used by pipeline
// stages and adapters so callers can classify failures without depending
// on provider-specific error types.
package services
