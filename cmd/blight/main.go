// Package main provides the entry point for the blight CLI.
//
// Blight discovers recurring rendering defects across a website from a
// single known-bad example page: it infers a structural signature of the
// defect, synthesizes tolerant match patterns, crawls the site breadth-first,
// and reports every page whose content matches.
//
// Usage:
//
//	blight scan --example https://site.example/bad-page --root https://site.example
//
// See --help for all available options.
package main

// main is the entry point for blight.
func main() {
	Execute()
}
