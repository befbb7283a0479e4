package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/graphql"
)

func main() {
	pOutdir := flag.String("o", "", "output directory, the schema is printed when empty")
	pStrict := flag.Bool("s", false, "treat unknown properties as errors")
	pConfig := flag.String("c", "", "generator configuration file, for custom-scalars")
	flag.Parse()
	argv := flag.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "usage: commsdsl2graphql [-o outdir] schema.xml...\n")
		os.Exit(1)
	}
	config := commsdsl.NewData()
	if *pConfig != "" {
		var err error
		if config, err = commsdsl.DataFromFile(*pConfig); err != nil {
			fmt.Fprintf(os.Stderr, "*** %v\n", err)
			os.Exit(1)
		}
	}
	p := commsdsl.NewProtocol(commsdsl.NewLogger(os.Stderr))
	p.Strict = *pStrict
	for _, path := range argv {
		if err := p.ParseFile(path); err != nil {
			os.Exit(2)
		}
	}
	if err := p.Validate(); err != nil {
		os.Exit(2)
	}
	outDir := *pOutdir
	if outDir == "" {
		tmp, err := os.MkdirTemp("", "commsdsl2graphql")
		if err != nil {
			fmt.Fprintf(os.Stderr, "*** %v\n", err)
			os.Exit(1)
		}
		outDir = tmp
	}
	b, err := graphql.Generate(p, config, outDir)
	if *pOutdir == "" {
		os.RemoveAll(outDir)
	}
	if err != nil {
		os.Exit(3)
	}
	if *pOutdir == "" {
		fmt.Print(b.Source())
	}
}
