// luadump CLI - writes prototype trees as precompiled chunks
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/luadump/chunk"
	"github.com/chazu/luadump/manifest"
	"github.com/chazu/luadump/protofile"
	"github.com/chazu/luadump/server"
	"github.com/chazu/luadump/store"
)

var log = commonlog.GetLogger("luadump")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type options struct {
	output    string
	strip     bool
	keepDebug bool
	storePath string
	list      bool
	listFull  bool
	serve     bool
	addr      string
	verbose   bool
	debug     bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("luadump", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts options
	fs.StringVar(&opts.output, "o", "", "Output file (only with a single input)")
	fs.BoolVar(&opts.strip, "s", false, "Strip debug information")
	fs.BoolVar(&opts.keepDebug, "keep-debug", false, "Keep debug information even if luadump.toml sets strip")
	fs.StringVar(&opts.storePath, "store", "", "Also save chunks to this chunk store")
	fs.BoolVar(&opts.list, "l", false, "List chunk contents")
	fs.BoolVar(&opts.listFull, "ll", false, "List chunk contents with constant, local and upvalue tables")
	fs.BoolVar(&opts.serve, "serve", false, "Run the dump service (Connect + gRPC)")
	fs.StringVar(&opts.addr, "addr", "", "Service address (default from luadump.toml, else "+manifest.DefaultAddr+")")
	fs.BoolVar(&opts.verbose, "v", false, "Verbose output")
	fs.BoolVar(&opts.debug, "debug", false, "Debug logging")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: luadump [options] files...\n\n")
		fmt.Fprintf(stderr, "Writes prototype files (.proto.cbor) as precompiled chunks.\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  luadump main.proto.cbor              # writes main.luac\n")
		fmt.Fprintf(stderr, "  luadump -s -o app.luac app.proto.cbor\n")
		fmt.Fprintf(stderr, "  luadump -l app.luac                  # list instructions\n")
		fmt.Fprintf(stderr, "  luadump -serve -addr :4568           # run the dump service\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	verbosity := 0
	if opts.verbose {
		verbosity = 1
	}
	if opts.debug {
		verbosity = 2
	}
	commonlog.Configure(verbosity, nil)

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if m == nil {
		m = manifest.Default()
	} else {
		log.Infof("using %s", filepath.Join(m.Dir, manifest.FileName))
	}

	switch {
	case opts.serve:
		err = serve(m, &opts)
	case opts.list || opts.listFull:
		err = list(fs.Args(), opts.listFull, stdout)
	default:
		err = dump(fs.Args(), m, &opts, stdout)
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// openStore opens the store named on the command line or in the manifest.
// It returns nil when neither names one.
func openStore(m *manifest.Manifest, opts *options) (*store.Store, error) {
	path := opts.storePath
	if path == "" {
		path = m.StorePath()
	}
	if path == "" {
		return nil, nil
	}
	return store.Open(path)
}

func dump(inputs []string, m *manifest.Manifest, opts *options, stdout io.Writer) error {
	if len(inputs) == 0 {
		return errors.New("no input files")
	}
	if opts.output != "" && len(inputs) > 1 {
		return errors.New("-o needs exactly one input file")
	}

	strip := (m.Dump.Strip || opts.strip) && !opts.keepDebug

	st, err := openStore(m, opts)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
	}

	for _, input := range inputs {
		p, err := protofile.ReadFile(input)
		if err != nil {
			return err
		}

		out := opts.output
		if out == "" {
			out = m.OutputPath(input)
		}
		if err := writeChunk(out, p, strip); err != nil {
			return err
		}

		if st != nil {
			name := filepath.Base(out)
			e, err := st.PutPrototype(context.Background(), name, p, strip)
			if err != nil {
				return err
			}
			log.Infof("stored %s as %s", name, e.Hash)
		}
		if opts.verbose {
			fmt.Fprintf(stdout, "%s -> %s\n", input, out)
		}
	}
	return nil
}

func writeChunk(path string, p *chunk.Prototype, strip bool) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	bw := bufio.NewWriter(f)
	err = chunk.DumpTo(bw, p, strip)
	if err == nil {
		err = bw.Flush()
	}
	if err != nil {
		f.Close()
		os.Remove(path)
		return fmt.Errorf("%s: %w", path, err)
	}
	return f.Close()
}

func list(inputs []string, full bool, stdout io.Writer) error {
	if len(inputs) == 0 {
		return errors.New("no input files")
	}
	for _, input := range inputs {
		f, err := os.Open(input)
		if err != nil {
			return err
		}
		p, err := chunk.UndumpFrom(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", input, err)
		}
		fmt.Fprint(stdout, chunk.List(p, full))
	}
	return nil
}

func serve(m *manifest.Manifest, opts *options) error {
	addr := opts.addr
	if addr == "" {
		addr = m.Server.Addr
	}

	var srvOpts []server.ServerOption
	st, err := openStore(m, opts)
	if err != nil {
		return err
	}
	if st != nil {
		defer st.Close()
		srvOpts = append(srvOpts, server.WithStore(st))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return server.New(srvOpts...).ListenAndServe(ctx, addr)
}
