// Package fflag manages fast-flag overrides: a persisted name → value set,
// the renderer selection flags, import of user JSON files, and rendering
// of ClientAppSettings.json.
//
// Flag names are case-sensitive and open-ended. Values keep their JSON
// type (bool, integer, float or string) from input to output.
package fflag
