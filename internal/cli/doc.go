// Package cli defines the Cobra command tree for the rsjfw CLI. Each file
// registers one top-level command with the root command. Commands only
// parse flags, format output and build the pipeline; the work happens in
// the internal packages.
package cli
