package main

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set by the release build with -ldflags "-X main.version=...".
var (
	version = ""
	commit  = ""
	date    = ""
)

// buildSetting looks up a key recorded by the go command, such as vcs.revision.
func buildSetting(key string) (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	if key == "main.version" {
		return info.Main.Version, info.Main.Version != ""
	}
	for _, s := range info.Settings {
		if s.Key == key && s.Value != "" {
			return s.Value, true
		}
	}
	return "", false
}

// firstOf returns the ldflags value when set, then the build setting, then fallback.
func firstOf(ldflag, key, fallback string) string {
	if ldflag != "" {
		return ldflag
	}
	if v, ok := buildSetting(key); ok {
		return v
	}
	return fallback
}

func getVersion() string {
	return firstOf(version, "main.version", "(devel)")
}

// getCommit shortens the revision to seven characters like git does.
func getCommit() string {
	c := firstOf(commit, "vcs.revision", "unknown")
	if commit == "" && len(c) > 7 && c != "unknown" {
		return c[:7]
	}
	return c
}

func getDate() string {
	return firstOf(date, "vcs.time", "unknown")
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the release, VCS revision, build date and Go runtime of ghprofile.`,
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ghprofile version %s\n", getVersion())
			fmt.Fprintf(out, "  commit: %s\n", getCommit())
			fmt.Fprintf(out, "  built:  %s\n", getDate())
			fmt.Fprintf(out, "  go:     %s %s/%s\n", runtime.Version(), runtime.GOOS, runtime.GOARCH)
		},
	}
}
