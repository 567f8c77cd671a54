// Package log provides the sanitizing slog setup used by ghprofile.
//
// Loggers are created once per run by the CLI and injected into every
// component; nothing in the core reaches for slog.Default.
//
// # Security Features
//
// The SecureHandler masks sensitive information before it is written:
//   - HTTP headers (Authorization, Cookie, Proxy-Authorization)
//   - GitHub tokens (ghp_, gho_, ghs_, github_pat_ ...) wherever they appear
//   - Tor control passwords and authentication cookies
//
// Even in verbose mode the credential never reaches the console or the
// per-run log file.
//
// # Usage
//
//	f, _ := log.CreateLogFile(dir, time.Now())
//	defer f.Close()
//	logger := log.NewRunLogger(os.Stderr, f, verbose)
//	logger.Info("updating bio", "username", cfg.Username)
package log
