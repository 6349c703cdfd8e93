// Crescent CLI - compiles and runs Crescent programs.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tliron/commonlog"

	"github.com/crescent-lang/crescent/pkg/bytecode"
	"github.com/crescent-lang/crescent/pkg/cache"
	"github.com/crescent-lang/crescent/pkg/config"
	"github.com/crescent-lang/crescent/pkg/interp"
	"github.com/crescent-lang/crescent/pkg/runtime"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	verbosity := flag.Int("v", 0, "Log verbosity (0 = quiet, 2 = debug)")
	disasm := flag.Bool("disasm", false, "Print the compiled bytecode listing instead of running")
	noCache := flag.Bool("no-cache", false, "Bypass the compiled-prototype cache")
	configDir := flag.String("config", "", "Directory to search for crescent.toml (defaults to the script's directory)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: crescent [options] <script> [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Compiles and runs a Crescent script.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  crescent hello.cres           # Run a script\n")
		fmt.Fprintf(os.Stderr, "  crescent -disasm hello.cres   # Show the bytecode listing\n")
		fmt.Fprintf(os.Stderr, "  crescent -v 2 hello.cres      # Run with debug logging\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}

	commonlog.Configure(*verbosity, nil)

	if err := run(flag.Arg(0), flag.Args()[1:], *disasm, *noCache, *configDir); err != nil {
		fmt.Fprintf(os.Stderr, "crescent: %v\n", err)
		os.Exit(1)
	}
}

func run(script string, scriptArgs []string, disasm, noCache bool, configDir string) error {
	source, err := os.ReadFile(script)
	if err != nil {
		return err
	}

	if configDir == "" {
		configDir = filepath.Dir(script)
	}
	cfg, err := config.FindAndLoad(configDir)
	if err != nil {
		return err
	}

	in := interp.New(cfg)

	proto, err := compileWithCache(in, cfg, script, string(source), noCache)
	if err != nil {
		return err
	}

	if disasm {
		fmt.Print(proto.Disassemble())
		return nil
	}

	args := make([]runtime.Value, len(scriptArgs))
	for i, a := range scriptArgs {
		args[i] = in.Heap().String(a)
	}

	if _, err := in.Call(in.Instantiate(proto), args...); err != nil {
		if rerr, ok := runtime.AsError(err); ok {
			return errors.New(rerr.Error())
		}
		return err
	}
	return nil
}

// compileWithCache consults the prototype cache before compiling, when the
// configuration enables it. Cache failures degrade to a plain compile.
func compileWithCache(in *interp.Interp, cfg *config.Config, name, source string, noCache bool) (*bytecode.Prototype, error) {
	if noCache || !cfg.Cache.Enabled {
		return in.CompileSource(name, source)
	}

	store, err := cache.Open(cfg.CachePath())
	if err != nil {
		commonlog.NewWarningMessage(0, fmt.Sprintf("cache unavailable: %v", err))
		return in.CompileSource(name, source)
	}
	defer store.Close()

	key := cache.SourceKey(source)
	if proto, err := store.Get(key); err == nil {
		return proto, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		commonlog.NewWarningMessage(0, fmt.Sprintf("cache read failed: %v", err))
	}

	proto, err := in.CompileSource(name, source)
	if err != nil {
		return nil, err
	}
	if err := store.Put(key, proto); err != nil {
		commonlog.NewWarningMessage(0, fmt.Sprintf("cache write failed: %v", err))
	}
	return proto, nil
}
