// Package main provides the entry point for the imgfetch CLI.
//
// imgfetch downloads images from a list of URLs into a directory and never
// saves the same content twice, even when it appears under another URL or
// file name.
//
// Usage:
//
//	imgfetch fetch https://example.com/a.png https://example.com/b.jpg
//	imgfetch fetch --list urls.txt --output-dir pics
//	imgfetch history
//
// See --help for all available options.
package main

func main() {
	Execute()
}
