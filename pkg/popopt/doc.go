// Package popopt rebuilds Debian source packages with compiler flags tuned for a CPU
// micro-architecture. Every package version goes through a fixed pipeline: its source
// is fetched, patched and re-versioned once, then built for each machine architecture
// independently. The binary packages are finally hard-linked into a pool.
//
// Each pipeline step is a checkpointed stage directory (see Stage), which makes every
// operation safe to re-run after a failure or an interrupt.
package popopt

// Version is set during the build using ldflags
var Version = "unknown"
