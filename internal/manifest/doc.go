// Package manifest fetches and parses the package manifest published next
// to every application version on the CDN.
//
// The manifest is plain text: a "v0" header line followed by four-line
// groups of package name, md5 checksum, unpacked size and packed size.
package manifest
