// Package main provides the entry point for the headscrape CLI.
//
// headscrape renders adventurer profile pages in headless Chromium,
// rotating through layers of proxies before falling back to a direct
// connection, and prints the extracted profile fields.
//
// Usage:
//
//	headscrape scrape <profile-url>...
//	headscrape proxies check
//	headscrape history [profile-url]
//
// See --help for all available options.
package main

func main() {
	Execute()
}
