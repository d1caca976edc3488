package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"

	"github.com/YuGuangWang/cwn/internal/alert"
	"github.com/YuGuangWang/cwn/internal/cellcomplex"
	"github.com/YuGuangWang/cwn/internal/config"
	"github.com/YuGuangWang/cwn/internal/dataset"
	"github.com/YuGuangWang/cwn/internal/rings"
	"github.com/YuGuangWang/cwn/internal/store"
	"github.com/YuGuangWang/cwn/pkg/models"
)

func captureStdout(t *testing.T, fn func()) string {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	os.Stdout = w

	fn()

	_ = w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(r)
	return buf.String()
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input   string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"info", slog.LevelInfo, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"DEBUG", slog.LevelDebug, false},
		{"Error", slog.LevelError, false},
		{"invalid", slog.LevelInfo, true},
		{"", slog.LevelInfo, true},
		{"trace", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := parseLogLevel(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("parseLogLevel(%q) expected error", tt.input)
			}
		} else {
			if err != nil {
				t.Errorf("parseLogLevel(%q) unexpected error: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("parseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		}
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		input int64
		want  string
	}{
		{0, "0 B"},
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{1048576, "1.0 MB"},
		{1073741824, "1.0 GB"},
	}

	for _, tt := range tests {
		got := formatBytes(tt.input)
		if got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestVersionCmd(t *testing.T) {
	output := captureStdout(t, func() {
		cmd := versionCmd()
		cmd.Run(cmd, nil)
	})
	if !strings.Contains(output, "cwn") {
		t.Errorf("version output should contain 'cwn', got %q", output)
	}
}

func TestCompletionCmd(t *testing.T) {
	for _, shell := range []string{"bash", "zsh", "fish", "powershell"} {
		root := &cobra.Command{Use: "cwn"}
		root.AddCommand(completionCmd())
		root.SetArgs([]string{"completion", shell})

		var err error
		output := captureStdout(t, func() { err = root.Execute() })
		if err != nil {
			t.Fatalf("completion %s error: %v", shell, err)
		}
		if output == "" {
			t.Errorf("completion %s produced no output", shell)
		}
	}
}

func TestCompletionCmd_InvalidShell(t *testing.T) {
	root := &cobra.Command{Use: "cwn"}
	root.AddCommand(completionCmd())
	root.SetArgs([]string{"completion", "invalid"})
	root.SetErr(&bytes.Buffer{})
	if err := root.Execute(); err == nil {
		t.Error("expected error for invalid shell")
	}
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	want := []string{"rings", "stats", "process", "dataset", "complex", "sync", "serve", "db", "version", "completion"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}

func TestDatasetConfig(t *testing.T) {
	cfg := &config.Config{Dataset: config.DatasetConfig{
		Root: "/data", Name: "ZINC", MaxRingSize: 12, IncludeDownAdj: true,
	}}

	dc := datasetConfig(cfg, "", 0, false)
	if dc.Name != "ZINC" || dc.MaxRingSize != 12 || dc.Root != "/data" || !dc.IncludeDownAdj {
		t.Errorf("defaults not applied: %+v", dc)
	}
	if dc.Key() != "ZINC_12rings" {
		t.Errorf("key = %q", dc.Key())
	}

	dc = datasetConfig(cfg, "MOLHIV", 6, true)
	if dc.Name != "MOLHIV" || dc.MaxRingSize != 6 || !dc.UseEdgeFeatures {
		t.Errorf("overrides not applied: %+v", dc)
	}
	if dc.Key() != "MOLHIV_6rings-E" {
		t.Errorf("key = %q", dc.Key())
	}
}

func TestConfiguredDatasets(t *testing.T) {
	cfg := &config.Config{Dataset: config.DatasetConfig{Root: "/data", Name: "ZINC", MaxRingSize: 12}}

	got := configuredDatasets(cfg)
	if len(got) != 1 || got[0].Name != "ZINC" {
		t.Fatalf("empty list should fall back to the default dataset, got %+v", got)
	}

	cfg.Datasets = []config.DatasetSource{
		{Name: "ZINC", MaxRingSize: 18},
		{Name: "MOLHIV", UseEdgeFeatures: true},
	}
	got = configuredDatasets(cfg)
	if len(got) != 2 {
		t.Fatalf("got %d configs, want 2", len(got))
	}
	if got[0].MaxRingSize != 18 || got[1].MaxRingSize != 12 {
		t.Errorf("max ring sizes = %d, %d", got[0].MaxRingSize, got[1].MaxRingSize)
	}
	if !got[1].UseEdgeFeatures || got[1].Root != "/data" {
		t.Errorf("second config = %+v", got[1])
	}
}

func TestNewAlerter(t *testing.T) {
	cfg := &config.Config{}
	if newAlerter(cfg) != nil {
		t.Error("no backends enabled should yield nil")
	}

	cfg.Alerts.Stdout.Enabled = true
	cfg.Alerts.Webhook = config.WebhookConfig{Enabled: true, URL: "http://hooks.local"}
	a, ok := newAlerter(cfg).(*alert.Multi)
	if !ok || a.Len() != 2 {
		t.Errorf("expected multi-alerter with 2 backends, got %#v", a)
	}

	cfg.Alerts.Webhook.URL = ""
	if a, _ := newAlerter(cfg).(*alert.Multi); a == nil || a.Len() != 1 {
		t.Error("webhook without URL should be skipped")
	}
}

func TestPrintRings(t *testing.T) {
	// square with a chord: two triangles and the square itself
	g := models.Graph{NumNodes: 4, Edges: []models.Edge{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {0, 2}}}
	finder, err := rings.New(4)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printRings(&buf, []models.Graph{g}, finder); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "graph 0: 4 vertices, 5 edges, 3 rings") {
		t.Errorf("missing summary line:\n%s", out)
	}
	if !strings.Contains(out, "[4] 0,1,2,3") {
		t.Errorf("missing square:\n%s", out)
	}
}

func TestPrintRings_Limit(t *testing.T) {
	g := models.Graph{NumNodes: 4, Edges: []models.Edge{{0, 1}, {1, 2}, {2, 3}, {3, 0}, {0, 2}}}
	finder, _ := rings.New(4, rings.WithMaxRings(1))

	err := printRings(&bytes.Buffer{}, []models.Graph{g}, finder)
	if !errors.Is(err, rings.ErrRingLimit) {
		t.Errorf("expected ErrRingLimit, got %v", err)
	}
}

type memorySource map[models.Split][]models.Graph

func (m memorySource) Load(_ context.Context, split models.Split) ([]models.Graph, error) {
	graphs, ok := m[split]
	if !ok {
		return nil, dataset.ErrSplitNotFound
	}
	return graphs, nil
}

var (
	triangle = models.Graph{NumNodes: 3, Edges: []models.Edge{{0, 1}, {1, 2}, {2, 0}}}
	square   = models.Graph{NumNodes: 4, Edges: []models.Edge{{0, 1}, {1, 2}, {2, 3}, {3, 0}}}
)

func TestRunStats_Text(t *testing.T) {
	src := memorySource{
		models.SplitTrain: {triangle, square},
		models.SplitVal:   {square},
	}
	finder, _ := rings.New(4)

	var buf bytes.Buffer
	if err := runStats(context.Background(), &buf, src, "TOY", finder, "text"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()

	for _, want := range []string{
		"----==== TOY ====----",
		"=============== Train ================",
		"=============== Validation ================",
		"=============== Whole Dataset ================",
		"Ring 03 => Min: 0.000, Max: 1.000, Mean:0.333, Median: 0.000, Sum: 1, Non-zero: 1",
		"Ring 04 => Min: 0.000, Max: 1.000, Mean:0.667, Median: 1.000, Sum: 2, Non-zero: 2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Test") {
		t.Errorf("test section printed without a test split:\n%s", out)
	}
	if n := strings.Count(out, "Ring 03"); n != 3 {
		t.Errorf("Ring 03 appears %d times, want 3", n)
	}
}

func TestRunStats_WithTestSplit(t *testing.T) {
	src := memorySource{
		models.SplitTrain: {triangle},
		models.SplitVal:   {triangle},
		models.SplitTest:  {square},
	}
	finder, _ := rings.New(5)

	var buf bytes.Buffer
	if err := runStats(context.Background(), &buf, src, "TOY", finder, "text"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "=============== Test ================") {
		t.Errorf("missing test section:\n%s", out)
	}
	if n := strings.Count(out, "Ring 05"); n != 4 {
		t.Errorf("Ring 05 appears %d times, want 4 (bound is inclusive)", n)
	}
}

func TestRunStats_YAML(t *testing.T) {
	src := memorySource{
		models.SplitTrain: {triangle},
		models.SplitVal:   {square},
	}
	finder, _ := rings.New(4)

	var buf bytes.Buffer
	if err := runStats(context.Background(), &buf, src, "TOY", finder, "yaml"); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "name: Whole Dataset") || !strings.Contains(out, "name: Validation") {
		t.Errorf("unexpected yaml:\n%s", out)
	}
}

func TestRunStats_MissingSplit(t *testing.T) {
	src := memorySource{models.SplitTrain: {triangle}}
	finder, _ := rings.New(4)

	err := runStats(context.Background(), &bytes.Buffer{}, src, "TOY", finder, "text")
	if !errors.Is(err, dataset.ErrSplitNotFound) {
		t.Errorf("expected ErrSplitNotFound, got %v", err)
	}
}

func TestPrintComplex(t *testing.T) {
	rs, err := rings.FindRings(square, 4)
	if err != nil {
		t.Fatal(err)
	}
	c, err := cellcomplex.Build(square, rs)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printComplex(&buf, "TOY_4rings", 0, models.SplitTrain, c); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Complex 0 of TOY_4rings (split: train)", "Vertices:  4", "Edges:     4", "Rings:     1", "0,1,2,3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		if got := confirm(strings.NewReader(tt.input), &out, "ok? "); got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if out.String() != "ok? " {
			t.Errorf("prompt = %q", out.String())
		}
	}
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.db")
	if err := os.WriteFile(src, []byte("sqlite"), 0o600); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "backups", "nested", "dst.db")

	n, err := copyFile(src, dst)
	if err != nil {
		t.Fatal(err)
	}
	if n != 6 {
		t.Errorf("copied %d bytes, want 6", n)
	}
	data, err := os.ReadFile(dst)
	if err != nil || string(data) != "sqlite" {
		t.Errorf("backup content = %q, err = %v", data, err)
	}

	if _, err := copyFile(filepath.Join(dir, "missing.db"), dst); err == nil {
		t.Error("expected error for missing source")
	}
}

func TestQueryNeighbors_UnknownKind(t *testing.T) {
	_, err := queryNeighbors(context.Background(), store.NewLocalEngine(nil), store.CellRef{}, "sideways")
	if err == nil || !strings.Contains(err.Error(), "unsupported kind") {
		t.Errorf("expected unsupported kind error, got %v", err)
	}
}

func TestPrintDBStats(t *testing.T) {
	st, err := store.NewSQLiteStore(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close() //nolint:errcheck // best-effort cleanup
	ctx := context.Background()
	if err := st.Init(ctx); err != nil {
		t.Fatal(err)
	}

	rs, _ := rings.FindRings(square, 4)
	c, _ := cellcomplex.Build(square, rs)
	ds := &models.Dataset{
		Key: "TOY_4rings", Name: "TOY", MaxRingSize: 4,
		Complexes: []models.Complex{*c, *c},
		Splits:    models.SplitIndex{Train: []int{0}, Val: []int{1}},
	}
	if err := st.SaveDataset(ctx, ds); err != nil {
		t.Fatal(err)
	}
	runID, err := st.RecordRun(ctx, store.Run{DatasetKey: ds.Key, Status: store.RunRunning})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.UpdateRun(ctx, runID, store.RunCompleted, 2, 2); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := printDBStats(ctx, &buf, st); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"Datasets:  1", "Complexes: 2", "Runs: 1 recent", "completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

const toyTrain = `
graphs:
  - num_nodes: 3
    edges: [[0, 1], [1, 2], [2, 0]]
  - num_nodes: 4
    edges: [[0, 1], [1, 2], [2, 3], [3, 0]]
`

const toyVal = `
graphs:
  - num_nodes: 6
    edges: [[0, 1], [1, 2], [2, 3], [3, 4], [4, 5], [5, 0]]
`

// writeToyProject lays out a raw TOY dataset and a config file pointing at it
// and at a fresh database, returning the config path.
func writeToyProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	raw := filepath.Join(root, "datasets", "TOY", "raw")
	if err := os.MkdirAll(raw, 0o750); err != nil {
		t.Fatal(err)
	}
	for name, body := range map[string]string{"TOY_train.yaml": toyTrain, "TOY_val.yaml": toyVal} {
		if err := os.WriteFile(filepath.Join(raw, name), []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
	}

	cfgPath := filepath.Join(root, "cwn.yaml")
	cfg := "storage:\n  path: " + filepath.Join(root, "data", "cwn.db") + "\n" +
		"dataset:\n  root: " + filepath.Join(root, "datasets") + "\n  name: TOY\n  max_ring_size: 6\n"
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatal(err)
	}
	return cfgPath
}

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() { cfgFile, dbPath = "", "" })
	root := newRootCmd()
	root.SetArgs(args)
	root.SetErr(&bytes.Buffer{})
	var err error
	out := captureStdout(t, func() { err = root.Execute() })
	return out, err
}

func TestCLI_ProcessListShow(t *testing.T) {
	cfgPath := writeToyProject(t)

	out, err := runCLI(t, "--config", cfgPath, "--log-level", "error", "process")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !strings.Contains(out, "Processed TOY_6rings: 3 graphs -> 3 complexes") {
		t.Errorf("process output:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "--log-level", "error", "process")
	if err != nil {
		t.Fatalf("second process: %v", err)
	}
	if !strings.Contains(out, "Loaded TOY_6rings from cache") {
		t.Errorf("second run should hit the cache:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "dataset", "list")
	if err != nil {
		t.Fatalf("dataset list: %v", err)
	}
	if !strings.Contains(out, "TOY_6rings") || !strings.Contains(out, "2/1/0") {
		t.Errorf("dataset list output:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "complex", "show", "TOY_6rings", "1")
	if err != nil {
		t.Fatalf("complex show: %v", err)
	}
	if !strings.Contains(out, "Rings:     1") || !strings.Contains(out, "0,1,2,3") {
		t.Errorf("complex show output:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "complex", "neighbors", "TOY_6rings", "1", "1", "0", "--kind", "upper")
	if err != nil {
		t.Fatalf("complex neighbors: %v", err)
	}
	if !strings.Contains(out, "upper of cell 1/0: 1,2,3") {
		t.Errorf("neighbors output:\n%s", out)
	}

	out, err = runCLI(t, "--config", cfgPath, "complex", "export", "TOY_6rings", "0", "--format", "dot")
	if err != nil {
		t.Fatalf("complex export: %v", err)
	}
	if !strings.HasPrefix(out, "graph complex {") {
		t.Errorf("export output:\n%s", out)
	}

	if _, err := runCLI(t, "--config", cfgPath, "complex", "show", "TOY_6rings", "9"); err == nil {
		t.Error("expected error for missing complex")
	}

	out, err = runCLI(t, "--config", cfgPath, "dataset", "rm", "TOY_6rings", "--force")
	if err != nil {
		t.Fatalf("dataset rm: %v", err)
	}
	if !strings.Contains(out, "Deleted TOY_6rings.") {
		t.Errorf("rm output:\n%s", out)
	}
}

func TestCLI_Stats(t *testing.T) {
	cfgPath := writeToyProject(t)

	out, err := runCLI(t, "--config", cfgPath, "stats", "--max-ring-size", "6")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "----==== TOY ====----") || !strings.Contains(out, "Ring 06 =>") {
		t.Errorf("stats output:\n%s", out)
	}

	if _, err := runCLI(t, "--config", cfgPath, "stats", "--format", "xml"); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := runCLI(t, "--config", cfgPath, "stats", "--dataset", "MISSING"); err == nil {
		t.Error("expected error for missing dataset")
	}
}

func TestCLI_InvalidLogFormat(t *testing.T) {
	if _, err := runCLI(t, "--log-format", "xml", "version"); err == nil {
		t.Error("expected error for invalid --log-format")
	}
}
