package main

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"

	"github.com/chazu/tslgraph/pkg/config"
	"github.com/chazu/tslgraph/pkg/graph"
	"github.com/chazu/tslgraph/pkg/tsl"
)

// newTestApp returns an App over an in-memory filesystem holding the
// example graph as gradient.json.
func newTestApp(t *testing.T) (*App, afero.Fs) {
	t.Helper()
	data, err := os.ReadFile("examples/gradient.json")
	if err != nil {
		t.Fatalf("failed to read gradient.json: %v", err)
	}
	fs := afero.NewMemMapFs()
	if err := afero.WriteFile(fs, "gradient.json", data, 0o644); err != nil {
		t.Fatal(err)
	}
	return NewApp(config.Default(), fs, nil), fs
}

// TestE2EGradientExample exercises the full pipeline: stored JSON -> codec
// -> graph -> codegen.
func TestE2EGradientExample(t *testing.T) {
	app, _ := newTestApp(t)
	result := app.Compile(context.Background(), "gradient.json", "", "")

	if len(result.Errors) > 0 {
		for _, e := range result.Errors {
			t.Errorf("compile error: %s", e.Message)
		}
		t.FailNow()
	}
	if len(result.Warnings) > 0 {
		t.Errorf("unexpected load warnings: %v", result.Warnings)
	}

	want := `import { vec4, sin, vec2, vec3, uv, Fn } from "three/tsl";
Fn(() => {
  const coords = uv()
  const split_X = coords.x
  const split_Y = coords.y
  const wave = sin(split_X)
  const tint = vec4(wave, split_Y, 0.5, 1)
  return tint
})()`
	if diff := cmp.Diff(want, result.Source); diff != "" {
		t.Errorf("source mismatch (-want +got):\n%s", diff)
	}
	for _, label := range []string{"material (MeshStandardMaterial)", "tint (Vec4)", "coords (UV)"} {
		if !strings.Contains(result.Tree, label) {
			t.Errorf("tree does not mention %q:\n%s", label, result.Tree)
		}
	}
}

func TestE2ETraceInput(t *testing.T) {
	app, _ := newTestApp(t)
	result := app.Compile(context.Background(), "gradient.json", "tint", "b")
	if len(result.Errors) > 0 {
		t.Fatalf("compile errors: %v", result.Errors)
	}
	if strings.Contains(result.Source, "const wave") {
		t.Errorf("traced compile should leave out the untraced branch:\n%s", result.Source)
	}
	if !strings.Contains(result.Source, "const tint = vec4(sin(uv().x), split_Y, 0.5, 1)") {
		t.Errorf("untraced input should be written as its current value:\n%s", result.Source)
	}
}

func TestE2EEmptyGraph(t *testing.T) {
	app, _ := newTestApp(t)
	result := app.Compile(context.Background(), "missing.json", "", "")
	if len(result.Errors) != 1 || !strings.Contains(result.Errors[0].Message, "no material") {
		t.Fatalf("errors = %v, want a missing sink", result.Errors)
	}
	if result.Source != "" {
		t.Errorf("expected no source, got %q", result.Source)
	}
}

func TestE2EBrokenDocument(t *testing.T) {
	app, fs := newTestApp(t)
	if err := afero.WriteFile(fs, "broken.json", []byte(`[{"id":`), 0o644); err != nil {
		t.Fatal(err)
	}
	result := app.Compile(context.Background(), "broken.json", "", "")
	if len(result.Errors) == 0 {
		t.Fatal("expected a load error for malformed JSON")
	}
}

func TestE2EEditAndRecompile(t *testing.T) {
	ctx := context.Background()
	app, _ := newTestApp(t)

	if err := app.SetInput(ctx, "gradient.json", "tint.c", "0.25"); err != nil {
		t.Fatal(err)
	}
	src, err := os.ReadFile("examples/radial.js")
	if err != nil {
		t.Fatal(err)
	}
	n, err := app.AddNode(ctx, "gradient.json", "", string(src), "radial", graph.Position{X: 100, Y: 200})
	if err != nil {
		t.Fatal(err)
	}
	if n.Base().Type != "CustomNode" {
		t.Errorf("type = %s", n.Base().Type)
	}
	if err := app.Connect(ctx, "gradient.json", "radial.value", "split.a", false); err == nil {
		t.Fatal("connecting into a wired input without -replace should fail")
	}
	if err := app.Connect(ctx, "gradient.json", "radial.value", "split.a", true); err != nil {
		t.Fatal(err)
	}

	result := app.Compile(ctx, "gradient.json", "material", "")
	if len(result.Errors) > 0 {
		t.Fatalf("compile errors: %v", result.Errors)
	}
	for _, want := range []string{
		"const radial = Fn(([center = 0.5]) => {",
		"const split_X = radial.x",
		"const tint = vec4(wave, split_Y, 0.25, 1)",
	} {
		if !strings.Contains(result.Source, want) {
			t.Errorf("source missing %q:\n%s", want, result.Source)
		}
	}
	if strings.Contains(result.Source, "const coords") {
		t.Errorf("replaced upstream should no longer be compiled:\n%s", result.Source)
	}
}

func TestSessionSavesOnClose(t *testing.T) {
	ctx := context.Background()
	app, fs := newTestApp(t)
	app.cfg.Store.DebounceDuration = time.Millisecond
	app.cfg.Store.MaxWaitDuration = time.Millisecond
	before, err := afero.ReadFile(fs, "gradient.json")
	if err != nil {
		t.Fatal(err)
	}

	sess, err := app.Open(ctx, "gradient.json")
	if err != nil {
		t.Fatal(err)
	}
	in, err := app.input(sess.Graph, "tint.c")
	if err != nil {
		t.Fatal(err)
	}
	if err := in.Set(tsl.Num(0.75)); err != nil {
		t.Fatal(err)
	}
	sess.Graph.MarkDirty()
	sess.Graph.MarkDirty() // past the max wait
	time.Sleep(20 * time.Millisecond)

	during, err := afero.ReadFile(fs, "gradient.json")
	if err != nil {
		t.Fatal(err)
	}
	if string(during) != string(before) {
		t.Error("graph was written before Close")
	}
	if err := sess.Close(ctx); err != nil {
		t.Fatal(err)
	}
	after, err := afero.ReadFile(fs, "gradient.json")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(after), "0.75") {
		t.Errorf("Close did not save the edit:\n%s", after)
	}
}

func TestE2EConnectRejectsCycle(t *testing.T) {
	app, _ := newTestApp(t)
	err := app.Connect(context.Background(), "gradient.json", "tint.value", "wave.a", true)
	if err == nil || !strings.Contains(err.Error(), "cycle") {
		t.Fatalf("err = %v, want a cycle error", err)
	}
}

func TestE2EPreview(t *testing.T) {
	app, fs := newTestApp(t)
	written, err := app.Preview(context.Background(), "gradient.json", "out", 0)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"out/coords.value.png",
		"out/split.x.png",
		"out/split.y.png",
		"out/wave.output.png",
		"out/tint.value.png",
		"out/material.value.png",
	}
	if diff := cmp.Diff(want, written); diff != "" {
		t.Errorf("written mismatch (-want +got):\n%s", diff)
	}
	for _, name := range written {
		if ok, _ := afero.Exists(fs, name); !ok {
			t.Errorf("%s was not written", name)
		}
	}
}

func TestE2ECheck(t *testing.T) {
	app, _ := newTestApp(t)
	src, err := os.ReadFile("examples/radial.js")
	if err != nil {
		t.Fatal(err)
	}
	result := app.Check(string(src))
	if len(result.Errors) > 0 {
		t.Fatalf("check errors: %v", result.Errors)
	}
	if diff := cmp.Diff([]string{"center"}, result.Inputs); diff != "" {
		t.Errorf("inputs mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(result.Output, "vec2(") || !strings.Contains(result.Output, "sub(uv(), 0.5)") {
		t.Errorf("output = %s", result.Output)
	}
}
