// Package tools defines the fixed registry of external reconnaissance tools
// that madrecon knows how to drive.
//
// Each tool is described by a Spec: the executable name, the pipeline stage
// it belongs to, whether it accepts custom "-H" headers, and an argument
// template whose placeholders are filled in for every invocation. The
// registry is static; specs are never mutated at runtime.
//
// Selection flags (--include, --exclude) are parsed against this registry
// with ParseList, which rejects identifiers that are not registered.
package tools
