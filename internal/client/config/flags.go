package config

import (
	"flag"
	"io"

	"github.com/dmitrijs2005/studyctl/internal/flagx"
)

// parseFlags overlays cfg with the command-line flags it owns. Other flags
// in args are filtered out with flagx.FilterArgs so the CLI's own options
// do not trip the parser.
func parseFlags(cfg *Config, args []string) error {
	args = flagx.FilterArgs(args, []string{"-a", "-d", "-l", "-f", "-i", "-t", "-m"})

	fs := flag.NewFlagSet("studyctl", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.StringVar(&cfg.ServerURL, "a", cfg.ServerURL, "base URL of the remote service")
	fs.StringVar(&cfg.CachePath, "d", cfg.CachePath, "local cache database path")
	fs.StringVar(&cfg.LogLevel, "l", cfg.LogLevel, "log level")
	fs.StringVar(&cfg.LogFormat, "f", cfg.LogFormat, "log format (json or text)")
	fs.DurationVar(&cfg.MonitorInterval, "i", cfg.MonitorInterval, "session revalidation interval")
	fs.DurationVar(&cfg.RequestTimeout, "t", cfg.RequestTimeout, "per-request timeout")
	fs.StringVar(&cfg.MetricsAddr, "m", cfg.MetricsAddr, "metrics listen address")

	return fs.Parse(args)
}
