// Package builtin holds the tools compiled into every toolhost binary.
// Importing the package registers them with the catalog.
package builtin
