package main

import (
	"fmt"
	"os"
	"sort"
	"strings"

	cli "github.com/jawher/mow.cli"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/project"
)

var Version = "development version"

func main() {
	app := cli.App("commsdsl", "Validate CommsDSL protocol schemas and generate code from them")
	app.Version("version", "commsdsl "+Version)
	app.Spec = "[-v] [-q]"
	verbose := app.BoolOpt("v verbose", false, "print debug output")
	quiet := app.BoolOpt("q quiet", false, "print errors only")

	newLogger := func() *commsdsl.Logger {
		logger := commsdsl.NewLogger(os.Stderr)
		switch {
		case *quiet:
			logger.MinLevel = commsdsl.LevelError
		case *verbose:
			logger.MinLevel = commsdsl.LevelDebug
		}
		return logger
	}

	app.Command("check", "parse and validate schema files", func(cmd *cli.Cmd) {
		cmd.Spec = "[--strict] [--extra-prefix...] FILES..."
		strict := cmd.BoolOpt("s strict", false, "treat unknown properties as errors")
		prefixes := cmd.StringsOpt("extra-prefix", nil, "prefix of expected extra properties")
		files := cmd.StringsArg("FILES", nil, "schema files, in dependency order")
		cmd.Action = func() {
			p := load(newLogger(), *strict, *prefixes, *files)
			fmt.Printf("%s: %d message(s), %d warning(s)\n", p.CurrentSchema().Name, len(p.AllMessages()), p.Logger().WarningCount())
		}
	})

	app.Command("dump", "print the resolved model", func(cmd *cli.Cmd) {
		cmd.Spec = "[-f] [--strict] FILES..."
		format := cmd.StringOpt("f format", "yaml", "output format: yaml, json or text")
		strict := cmd.BoolOpt("s strict", false, "treat unknown properties as errors")
		files := cmd.StringsArg("FILES", nil, "schema files, in dependency order")
		cmd.Action = func() {
			p := load(newLogger(), *strict, nil, *files)
			out, err := Dump(p, *format)
			if err != nil {
				fail(err, 2)
			}
			fmt.Print(out)
		}
	})

	app.Command("gen", "generate code with one backend", func(cmd *cli.Cmd) {
		cmd.Spec = "-b -o [-c] [--strict] FILES..."
		backend := cmd.StringOpt("b backend", "", "backend name: "+strings.Join(backendNames(), ", "))
		outDir := cmd.StringOpt("o output", "", "output directory")
		configPath := cmd.StringOpt("c config", "", "generator configuration file (.yaml, .json or .toml)")
		strict := cmd.BoolOpt("s strict", false, "treat unknown properties as errors")
		files := cmd.StringsArg("FILES", nil, "schema files, in dependency order")
		cmd.Action = func() {
			run, ok := project.Backends[*backend]
			if !ok {
				fail(fmt.Errorf("unknown backend %q", *backend), 1)
			}
			config := commsdsl.NewData()
			if *configPath != "" {
				var err error
				if config, err = commsdsl.DataFromFile(*configPath); err != nil {
					fail(err, 1)
				}
			}
			logger := newLogger()
			p := load(logger, *strict, config.GetStringArray("extra-prefixes"), *files)
			if err := run(p, config, *outDir); err != nil {
				fail(err, 3)
			}
		}
	})

	app.Command("project", "run every output of an HCL project file", func(cmd *cli.Cmd) {
		cmd.Spec = "FILE"
		file := cmd.StringArg("FILE", "", "project file (.hcl)")
		cmd.Action = func() {
			proj, err := project.Load(*file)
			if err != nil {
				fail(err, 1)
			}
			if err := proj.Run(newLogger()); err != nil {
				fail(err, 3)
			}
		}
	})

	if err := app.Run(os.Args); err != nil {
		fail(err, 1)
	}
}

func backendNames() []string {
	names := make([]string, 0, len(project.Backends))
	for k := range project.Backends {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func load(logger *commsdsl.Logger, strict bool, prefixes []string, files []string) *commsdsl.Protocol {
	p := commsdsl.NewProtocol(logger)
	p.Strict = strict
	for _, prefix := range prefixes {
		p.AddExpectedExtraPrefix(prefix)
	}
	for _, f := range files {
		if err := p.ParseFile(f); err != nil {
			fail(err, 2)
		}
	}
	if err := p.Validate(); err != nil {
		fail(err, 2)
	}
	return p
}

// fail prints err unless the logger already did, and exits.
func fail(err error, code int) {
	if _, reported := err.(*commsdsl.Errors); !reported {
		fmt.Fprintf(os.Stderr, "*** %v\n", err)
	}
	cli.Exit(code)
}
