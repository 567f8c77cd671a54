// Package config provides the run configuration of ghprofile: defaults,
// validation, token resolution from the environment, XDG directories, and
// the optional YAML config file (.ghprofile) whose values act as defaults
// for command-line flags.
package config
