// Package cli defines the global command-line flags of the notifier binary,
// their environment variable fallbacks, and how they override the loaded
// configuration file.
package cli
