package config

import (
	"flag"
	"os"
	"strings"
)

// filterArgs keeps only the flags this package understands (and their
// values), so parsing here never trips over flags owned by other components.
// Both "-f value" and "-f=value" forms are recognized.
func filterArgs(args []string, allowed ...string) []string {
	known := map[string]bool{}
	for _, f := range allowed {
		known[f] = true
	}

	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if name, _, found := strings.Cut(arg, "="); found && strings.HasPrefix(name, "-") {
			if known[name] {
				out = append(out, arg)
			}
			continue
		}
		if known[arg] {
			out = append(out, arg)
			if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				out = append(out, args[i+1])
				i++
			}
		}
	}
	return out
}

// configFilePath extracts the -c/-config flag without disturbing anything
// else on the command line.
func configFilePath() string {
	args := filterArgs(os.Args[1:], "-c", "-config")

	var path string
	fs := flag.NewFlagSet("configfile", flag.ContinueOnError)
	fs.StringVar(&path, "config", "", "path to JSON config file")
	fs.StringVar(&path, "c", "", "path to JSON config file (short)")
	_ = fs.Parse(args)
	return path
}

// parseFlags overlays Config fields from command-line flags.
//
// Supported flags:
//
//	-d string   base data directory
//	-u string   account name
//	-w int      dispatcher worker count
func parseFlags(cfg *Config) {
	args := filterArgs(os.Args[1:], "-d", "-u", "-w")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)
	fs.StringVar(&cfg.DataDir, "d", cfg.DataDir, "base data directory")
	fs.StringVar(&cfg.Account, "u", cfg.Account, "account name")
	workers := fs.Int("w", cfg.Workers, "dispatcher worker count")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	if *workers > 0 {
		cfg.Workers = *workers
	}
}
