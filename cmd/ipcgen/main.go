package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"

	"go.uber.org/zap"

	"github.com/wippyai/ipcgen/abi"
	"github.com/wippyai/ipcgen/idl"
	"github.com/wippyai/ipcgen/planner"
	"github.com/wippyai/ipcgen/wire"
)

type config struct {
	idlFile     string
	abi         string
	strategy    string
	mode        string
	optLevel    int
	parallel    int
	watch       bool
	interactive bool
	verbose     bool
}

func main() {
	var cfg config
	flag.StringVar(&cfg.idlFile, "idl", "", "Path to interface description (YAML)")
	flag.StringVar(&cfg.abi, "abi", "", "Register table (overrides the file)")
	flag.StringVar(&cfg.strategy, "strategy", "", "Layout strategy: generic, optimized or target")
	flag.StringVar(&cfg.mode, "mode", "", "Register mode: nopic, pic or profile")
	flag.IntVar(&cfg.optLevel, "O", -1, "Optimization level; 0 disables short IPC")
	flag.IntVar(&cfg.parallel, "parallel", 0, "Operations planned concurrently")
	flag.BoolVar(&cfg.watch, "watch", false, "Re-plan when the file changes")
	flag.BoolVar(&cfg.interactive, "i", false, "Interactive mode with TUI")
	flag.BoolVar(&cfg.verbose, "v", false, "Debug logging")
	flag.Parse()

	if cfg.idlFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: ipcgen -idl <iface.yaml> [-abi name] [-strategy target] [-O n] [-mode nopic]")
		fmt.Fprintln(os.Stderr, "       ipcgen -idl <iface.yaml> -watch")
		fmt.Fprintln(os.Stderr, "       ipcgen -idl <iface.yaml> -i  (interactive mode)")
		fmt.Fprintf(os.Stderr, "ABIs: %v\n", abi.Names())
		os.Exit(1)
	}

	log := newLogger(cfg.verbose)
	defer func() { _ = log.Sync() }()
	idl.SetLogger(log)
	planner.SetLogger(log)
	wire.SetLogger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var err error
	switch {
	case cfg.interactive:
		err = runInteractive(cfg)
	case cfg.watch:
		err = watch(ctx, cfg, os.Stdout)
	default:
		err = run(ctx, cfg, os.Stdout)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger(verbose bool) *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	if !verbose {
		zc.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	}
	l, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return l
}

// session is a loaded interface description with the options it plans under.
type session struct {
	doc   *idl.Document
	facts *idl.StandardFacts
	opts  planner.Options
}

// load reads the description and applies flag overrides to its options.
func load(cfg config) (*session, error) {
	doc, err := idl.LoadFile(cfg.idlFile)
	if err != nil {
		return nil, err
	}
	opts, err := planner.OptionsFrom(doc.Options)
	if err != nil {
		return nil, err
	}
	if cfg.abi != "" {
		opts.ABI = cfg.abi
	}
	if cfg.strategy != "" {
		if opts.Strategy, err = planner.ParseStrategy(cfg.strategy); err != nil {
			return nil, err
		}
	}
	if cfg.mode != "" {
		if opts.Mode, err = abi.ParseMode(cfg.mode); err != nil {
			return nil, err
		}
	}
	if cfg.optLevel >= 0 {
		opts.OptLevel = cfg.optLevel
	}
	opts.Parallelism = cfg.parallel

	table, err := abi.Lookup(opts.ABI)
	if err != nil {
		return nil, err
	}
	facts := idl.NewStandardFacts(table.WordSize)
	if doc.Options.StringMax > 0 {
		facts.StringMax = doc.Options.StringMax
	}
	return &session{doc: doc, facts: facts, opts: opts}, nil
}

// plan plans the interface. Operation errors are returned with the plan.
func (s *session) plan(ctx context.Context) (*planner.InterfacePlan, error) {
	p, err := planner.New(s.facts, s.opts)
	if err != nil {
		return nil, err
	}
	return p.PlanInterface(ctx, s.doc.Interface)
}

func run(ctx context.Context, cfg config, w io.Writer) error {
	s, err := load(cfg)
	if err != nil {
		return err
	}
	ip, err := s.plan(ctx)
	if ip == nil {
		return err
	}
	newReport(w, s.opts).interfacePlan(ip)
	return err
}
