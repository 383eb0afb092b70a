// Package main provides the entry point for the madrecon CLI.
//
// madrecon orchestrates external reconnaissance tools against one target
// domain: subdomain enumeration, URL archives, liveness probing, scanning,
// pattern extraction and optional fuzzing. Every tool writes its output to
// a plain-text artifact in the output directory.
//
// Usage:
//
//	madrecon run example.com
//	madrecon run -H "Authorization: Bearer x" --fuzz example.com
//
// See --help for all available options.
package main

func main() {
	Execute()
}
