// Package provision acquires and repairs the two runtime components the
// launcher depends on: the Wine build that runs the application and the
// DXVK translation layer.
//
// Both components share one algorithm, parameterized by a static table of
// sources. Ensure walks four steps and stops at the first that yields a
// valid root: the recorded root, an already-extracted release in the
// staging directory, and finally a download of the matching GitHub release
// asset. A recorded root that no longer validates is silently replaced on
// the next call, except for Custom roots, which belong to the user.
package provision
