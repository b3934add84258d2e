// Package utils provides loose value conversion helpers.
//
// Directory exports and database rows carry attribute values of varying types
// (strings, numbers, byte slices). These helpers normalize them when building
// record keys and reading flags.
package utils
