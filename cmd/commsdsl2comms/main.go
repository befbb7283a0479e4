package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/boynton/commsdsl"
	"github.com/boynton/commsdsl/comms"
)

func main() {
	pOutdir := flag.String("o", ".", "output directory for generated headers")
	pNamespace := flag.String("n", "", "main C++ namespace, the schema name by default")
	pConfig := flag.String("c", "", "generator configuration file (.yaml, .json or .toml)")
	pStrict := flag.Bool("s", false, "treat unknown properties as errors")
	pKeep := flag.Bool("k", false, "keep existing files instead of overwriting them")
	pCustom := flag.String("custom", "", "directory with custom code snippets")
	pVersionIndependent := flag.Bool("version-independent", false, "generate code that ignores the protocol version")
	pMinRemote := flag.Int("min-remote-version", 0, "fields introduced up to this version are always present")
	flag.Parse()
	argv := flag.Args()
	if len(argv) == 0 {
		fmt.Fprintf(os.Stderr, "usage: commsdsl2comms -o outdir [-n namespace] [-c config] schema.xml...\n")
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
	if *pNamespace != "" {
		config.Put("main-namespace", *pNamespace)
	}
	if *pKeep {
		config.Put("force-overwrite", false)
	}
	if *pCustom != "" {
		config.Put("custom-code-dir", *pCustom)
	}
	if *pVersionIndependent {
		config.Put("version-independent", true)
	}
	if *pMinRemote > 0 {
		config.Put("min-remote-version", *pMinRemote)
	}
	p := commsdsl.NewProtocol(commsdsl.NewLogger(os.Stderr))
	p.Strict = *pStrict
	p.AllMessagesReferenced = config.GetConfigBool("all-messages-referenced", true)
	for _, path := range argv {
		if err := p.ParseFile(path); err != nil {
			os.Exit(2)
		}
	}
	if err := p.Validate(); err != nil {
		os.Exit(2)
	}
	g, err := comms.Generate(p, config, *pOutdir)
	if err != nil {
		os.Exit(3)
	}
	p.Logger().Info(fmt.Sprintf("generated %d element(s) into %s", g.Count(), *pOutdir))
}
