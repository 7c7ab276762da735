// Package platform holds the small filesystem operations the launcher
// needs beyond os: symlink replacement that never leaves the link missing,
// and restoring execute bits that some archive formats drop.
package platform
