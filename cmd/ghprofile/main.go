// Package main provides the entry point for the ghprofile CLI.
//
// ghprofile updates a GitHub user's profile bio and profile README,
// optionally routing every request through Tor and requesting a new Tor
// identity at the end of the run.
//
// Usage:
//
//	ghprofile update --username octocat --bio "Hello" --readme README.md
//	ghprofile update --username octocat --bio "Hello" --tor
//
// See --help for all available options.
package main

func main() {
	Execute()
}
