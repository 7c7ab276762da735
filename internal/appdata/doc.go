// Package appdata defines the on-disk layout of the application-data root
// (~/.rsjfw by default). Every installed version, cached download, runtime
// release and the Wine prefix live below this single directory.
package appdata
