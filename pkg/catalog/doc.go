// Package catalog finds the tools a host should serve.
//
// Tools reach the catalog two ways. Compiled-in tool packages call Register
// from an init function, and blank-importing the package is enough to make
// its tools available. Tools described by manifest files on disk are found by
// a Discoverer, which walks a root directory for files ending in .tool.json,
// .tool.yaml or .tool.yml and turns every valid entry into a factory through
// the Builder registered for the entry's kind.
//
// A Catalog combines both sources. Its result is computed once by Load and
// only recomputed by an explicit Rebuild; a Watcher reports manifest changes
// so callers can decide when to rebuild.
package catalog
