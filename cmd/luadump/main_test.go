package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/luadump/chunk"
	"github.com/chazu/luadump/protofile"
)

func writeProto(t *testing.T, dir, name string) string {
	t.Helper()
	p := &chunk.Prototype{
		IsVarArg:     true,
		MaxStackSize: 2,
		Code:         []uint32{0x00000001, 0x00800026},
		K:            []chunk.Constant{chunk.String("hello")},
		Upvalues:     []chunk.UpvalueDesc{{InStack: true, Name: "_ENV"}},
		Source:       chunk.StrPtr("@" + name + ".lua"),
		LineInfo:     []int32{1, 1},
	}
	path := filepath.Join(dir, name+".proto.cbor")
	if err := protofile.WriteFile(path, p); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestRun_DumpAndList(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in := writeProto(t, dir, "hello")
	out := filepath.Join(dir, "out.luac")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-o", out, in}, &stdout, &stderr); code != 0 {
		t.Fatalf("dump exit = %d, stderr: %s", code, stderr.String())
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(chunk.Signature)) {
		t.Error("output does not start with the chunk signature")
	}

	stdout.Reset()
	if code := run([]string{"-ll", out}, &stdout, &stderr); code != 0 {
		t.Fatalf("list exit = %d, stderr: %s", code, stderr.String())
	}
	listing := stdout.String()
	for _, want := range []string{"main <@hello.lua:0,0>", "constants (1):", "_ENV"} {
		if !strings.Contains(listing, want) {
			t.Errorf("listing missing %q:\n%s", want, listing)
		}
	}
}

func TestRun_DefaultOutputAndStrip(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	in := writeProto(t, dir, "app")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-s", in}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "app.luac"))
	if err != nil {
		t.Fatalf("default output not written: %v", err)
	}
	p, err := chunk.Undump(data)
	if err != nil {
		t.Fatalf("Undump: %v", err)
	}
	if p.Source != nil || p.LineInfo != nil {
		t.Error("-s output still carries debug information")
	}
}

func TestRun_ManifestStripAndStore(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	toml := "[dump]\nstrip = true\noutput-dir = \"build\"\n\n[store]\npath = \"chunks.db\"\n"
	if err := os.WriteFile(filepath.Join(dir, "luadump.toml"), []byte(toml), 0o644); err != nil {
		t.Fatal(err)
	}
	in := writeProto(t, dir, "lib")

	var stdout, stderr bytes.Buffer
	if code := run([]string{"-keep-debug", in}, &stdout, &stderr); code != 0 {
		t.Fatalf("exit = %d, stderr: %s", code, stderr.String())
	}
	data, err := os.ReadFile(filepath.Join(dir, "build", "lib.luac"))
	if err != nil {
		t.Fatalf("output not written to output-dir: %v", err)
	}
	p, err := chunk.Undump(data)
	if err != nil {
		t.Fatalf("Undump: %v", err)
	}
	if p.Source == nil {
		t.Error("-keep-debug did not override manifest strip")
	}
	if _, err := os.Stat(filepath.Join(dir, "chunks.db")); err != nil {
		t.Errorf("store not created: %v", err)
	}
}

func TestRun_Errors(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	tests := []struct {
		name string
		args []string
	}{
		{"no inputs", nil},
		{"missing file", []string{"nope.proto.cbor"}},
		{"-o with two inputs", []string{"-o", "x.luac", "a", "b"}},
		{"list non-chunk", []string{"-l", writeBadFile(t, dir)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if code := run(tt.args, &stdout, &stderr); code != 1 {
				t.Errorf("exit = %d, want 1", code)
			}
			if !strings.Contains(stderr.String(), "Error:") {
				t.Errorf("stderr = %q, want an error message", stderr.String())
			}
		})
	}
}

func writeBadFile(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "bad.luac")
	if err := os.WriteFile(path, []byte("not a chunk"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestWriteChunkMatchesMarshal(t *testing.T) {
	p := &chunk.Prototype{
		MaxStackSize: 2,
		Code:         make([]uint32, 5000),
		K:            []chunk.Constant{chunk.String("buffered"), chunk.Number(2)},
		Source:       chunk.StrPtr("@big.lua"),
		LineInfo:     make([]int32, 5000),
	}
	path := filepath.Join(t.TempDir(), "out", "big.luac")
	if err := writeChunk(path, p, false); err != nil {
		t.Fatalf("writeChunk: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want, _ := chunk.Marshal(p, false)
	if !bytes.Equal(got, want) {
		t.Errorf("file has %d bytes, want %d identical to Marshal", len(got), len(want))
	}
}

// chdir changes the working directory to dir for the duration of the test
// and restores it on cleanup (equivalent to testing.T.Chdir in Go 1.24+).
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(old); err != nil {
			t.Fatalf("Chdir restore: %v", err)
		}
	})
}
