package cmd

import (
	"bytes"
	"encoding/json"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/pesoscan/pesoscan/internal/history"
	"github.com/pesoscan/pesoscan/internal/models"
	"github.com/pesoscan/pesoscan/internal/storage"
)

const backendPayload = `{"scan_id":"scan-9","timestamp":"2024-06-01T09:30:00","overall_assessment":{"denomination":"500","authenticity_score":0.9,"counterfeit_probability":0.1},"combined_detections":{"peso_features":[],"security_features":[]},"processing_time":0.5}`

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PESOSCAN_API_URL",
		"PESOSCAN_HISTORY_FILE",
		"PESOSCAN_DATASET",
		"PESOSCAN_MAX_IMAGE_DIMENSION",
		"PESOSCAN_LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func seedHistory(t *testing.T, path string, records ...models.HistoryRecord) {
	t.Helper()
	store := history.New(storage.NewFile(path))
	// Add pushes to the front, so seed oldest first
	for i := len(records) - 1; i >= 0; i-- {
		if err := store.Add(records[i]); err != nil {
			t.Fatalf("seeding history: %v", err)
		}
	}
}

func record(id string, authentic bool, confidence float64, ts string) models.HistoryRecord {
	result, _ := json.Marshal(map[string]any{"authentic": authentic, "confidence": confidence})
	return models.HistoryRecord{ID: id, Timestamp: ts, Result: result, Mode: models.ModeUpload}
}

func parseOptions(t *testing.T, args ...string) (*options, error) {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	opts := &options{}
	opts.bindFlags(cmd.Flags())
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	return opts, opts.resolve(cmd)
}

func TestResolvePrecedence(t *testing.T) {
	clearEnv(t)
	t.Setenv("PESOSCAN_API_URL", "http://env:8000")
	t.Setenv("PESOSCAN_DATASET", "from-env")
	t.Setenv("PESOSCAN_MAX_IMAGE_DIMENSION", "1024")
	t.Setenv("PESOSCAN_HISTORY_FILE", "/tmp/env-history.json")

	opts, err := parseOptions(t, "--dataset", "from-flag")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	if opts.apiURL != "http://env:8000" {
		t.Errorf("apiURL = %q, want env value", opts.apiURL)
	}
	if opts.dataset != "from-flag" {
		t.Errorf("dataset = %q, flag should win over env", opts.dataset)
	}
	if opts.maxImageDim != 1024 {
		t.Errorf("maxImageDim = %d, want 1024", opts.maxImageDim)
	}
	if opts.historyFile != "/tmp/env-history.json" {
		t.Errorf("historyFile = %q", opts.historyFile)
	}
}

func TestResolveDefaults(t *testing.T) {
	clearEnv(t)

	opts, err := parseOptions(t)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if opts.apiURL != "http://localhost:8000" {
		t.Errorf("apiURL = %q", opts.apiURL)
	}
	if opts.historyFile == "" {
		t.Error("historyFile should fall back to a default path")
	}
	if opts.maxImageDim != 0 {
		t.Errorf("maxImageDim = %d, resizing should be off by default", opts.maxImageDim)
	}
}

func TestResolveRejectsBadDimension(t *testing.T) {
	tests := []struct {
		name string
		env  string
		args []string
	}{
		{"non-numeric env", "big", nil},
		{"negative flag", "", []string{"--max-image-dimension", "-5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("PESOSCAN_MAX_IMAGE_DIMENSION", tt.env)
			if _, err := parseOptions(t, tt.args...); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestHistoryListOrdering(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "history.json")
	seedHistory(t, file,
		record("b", false, 40, "2024-06-02T10:00:00.000Z"),
		record("a", true, 95, "2024-06-01T10:00:00.000Z"),
		record("c", true, 70, "2024-06-03T10:00:00.000Z"),
	)

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"newest", nil, []string{"c", "b", "a"}},
		{"oldest", []string{"--sort", "oldest"}, []string{"a", "b", "c"}},
		{"authentic only", []string{"--filter", "authentic"}, []string{"c", "a"}},
		{"counterfeit only", []string{"--filter", "counterfeit"}, []string{"b"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--history-file", file, "history", "list", "--output", "json"}, tt.args...)
			out, err := run(t, "", args...)
			if err != nil {
				t.Fatalf("history list: %v", err)
			}

			var records []models.HistoryRecord
			if err := json.Unmarshal([]byte(out), &records); err != nil {
				t.Fatalf("decoding output: %v\n%s", err, out)
			}
			var ids []string
			for _, r := range records {
				ids = append(ids, r.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tt.want, ",") {
				t.Errorf("ids = %v, want %v", ids, tt.want)
			}
		})
	}
}

func TestHistoryListEmptyText(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "history.json")

	out, err := run(t, "", "--history-file", file, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if !strings.Contains(out, "No scans in history.") {
		t.Errorf("unexpected output: %q", out)
	}
}

func TestHistoryListRejectsUnknownFilter(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "history.json")

	if _, err := run(t, "", "--history-file", file, "history", "list", "--filter", "fake"); err == nil {
		t.Error("expected an error for an unknown filter")
	}
}

func TestHistoryDeleteAndShow(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "history.json")
	seedHistory(t, file,
		record("keep", true, 90, "2024-06-02T10:00:00.000Z"),
		record("drop", false, 20, "2024-06-01T10:00:00.000Z"),
	)

	if _, err := run(t, "", "--history-file", file, "history", "delete", "drop", "--yes"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, "", "--history-file", file, "history", "delete", "drop", "-y"); err == nil {
		t.Error("deleting a missing id should fail")
	}
	if _, err := run(t, "", "--history-file", file, "history", "show", "drop"); err == nil {
		t.Error("showing a deleted id should fail")
	}

	out, err := run(t, "", "--history-file", file, "history", "show", "keep")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(out, "Record:     keep") {
		t.Errorf("show output missing record id:\n%s", out)
	}
}

func TestHistoryClearConfirmation(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "history.json")
	seedHistory(t, file, record("one", true, 90, "2024-06-02T10:00:00.000Z"))
	store := history.New(storage.NewFile(file))

	out, err := run(t, "n\n", "--history-file", file, "history", "clear")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if !strings.Contains(out, "Aborted.") {
		t.Errorf("expected abort, got %q", out)
	}
	if records, _ := store.All(); len(records) != 1 {
		t.Fatalf("history should be untouched, has %d records", len(records))
	}

	if _, err := run(t, "yes\n", "--history-file", file, "history", "clear"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if records, _ := store.All(); len(records) != 0 {
		t.Errorf("history should be empty, has %d records", len(records))
	}
}

func TestHistoryDeleteConfirmation(t *testing.T) {
	clearEnv(t)
	file := filepath.Join(t.TempDir(), "history.json")
	seedHistory(t, file, record("one", true, 90, "2024-06-02T10:00:00.000Z"))
	store := history.New(storage.NewFile(file))

	out, err := run(t, "n\n", "--history-file", file, "history", "delete", "one")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "Delete saved scan one? [y/N]") || !strings.Contains(out, "Aborted.") {
		t.Errorf("expected prompt and abort, got %q", out)
	}
	if _, ok, _ := store.Get("one"); !ok {
		t.Fatal("record should survive a declined delete")
	}

	out, err = run(t, "y\n", "--history-file", file, "history", "delete", "one")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !strings.Contains(out, "Deleted one") {
		t.Errorf("unexpected output: %q", out)
	}
	if _, ok, _ := store.Get("one"); ok {
		t.Error("record should be gone after a confirmed delete")
	}
}

func TestHistoryExportFailureLeavesNoFile(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "history.json")
	if err := storage.NewFile(file).Set(history.StorageKey, []byte("{not json")); err != nil {
		t.Fatal(err)
	}

	for _, format := range []string{"json", "csv", "parquet"} {
		target := filepath.Join(dir, "out."+format)
		if _, err := run(t, "", "--history-file", file, "history", "export", "--format", format, "--file", target); err == nil {
			t.Errorf("%s: expected an error for a corrupt history", format)
		}
		if _, err := os.Stat(target); !os.IsNotExist(err) {
			t.Errorf("%s: export file should not exist after a failure (stat err: %v)", format, err)
		}
	}
}

func TestHistoryExport(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "history.json")
	seedHistory(t, file, record("one", true, 90, "2024-06-02T10:00:00.000Z"))

	jsonPath := filepath.Join(dir, "out.json")
	if _, err := run(t, "", "--history-file", file, "history", "export", "--file", jsonPath); err != nil {
		t.Fatalf("export json: %v", err)
	}
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		t.Fatal(err)
	}
	var records []models.HistoryRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decoding export: %v", err)
	}
	if len(records) != 1 || records[0].ID != "one" {
		t.Errorf("unexpected export: %+v", records)
	}

	out, err := run(t, "", "--history-file", file, "history", "export", "--format", "csv", "--file", "-")
	if err != nil {
		t.Fatalf("export csv: %v", err)
	}
	if !strings.HasPrefix(out, "ID,Timestamp,Mode") {
		t.Errorf("unexpected csv header: %q", out)
	}

	if _, err := run(t, "", "--history-file", file, "history", "export", "--format", "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}

func TestExportFilename(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := map[string]string{
		"json":    "pesoscan-history-2024-06-01.json",
		"csv":     "pesoscan-history-2024-06-01.csv",
		"parquet": "pesoscan-history-2024-06-01.parquet",
	}
	for format, want := range tests {
		if got := exportFilename(now, format); got != want {
			t.Errorf("exportFilename(%s) = %q, want %q", format, got, want)
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
		{"  yes  \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
		{"sure\n", false},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got, err := confirm(strings.NewReader(tt.input), &out, "Proceed?")
		if err != nil {
			t.Fatalf("confirm(%q): %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("confirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "[y/N]") {
			t.Errorf("prompt not printed: %q", out.String())
		}
	}
}

func TestScanCommandSavesToHistory(t *testing.T) {
	clearEnv(t)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/comprehensive-scan" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, backendPayload)
	}))
	defer backend.Close()

	dir := t.TempDir()
	imagePath := filepath.Join(dir, "bill.jpg")
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 4)), nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(imagePath, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(dir, "history.json")

	out, err := run(t, "",
		"--api-url", backend.URL,
		"--history-file", file,
		"scan", imagePath, "--output", "json", "--save", "--mode", "camera")
	if err != nil {
		t.Fatalf("scan: %v", err)
	}

	var scan struct {
		ScanID string `json:"scanId"`
		View   struct {
			Label string `json:"label"`
		} `json:"view"`
	}
	if err := json.Unmarshal([]byte(out), &scan); err != nil {
		t.Fatalf("decoding output: %v\n%s", err, out)
	}
	if scan.ScanID != "scan-9" || scan.View.Label != "Authentic" {
		t.Errorf("unexpected scan: %+v", scan)
	}

	rec, ok, err := history.New(storage.NewFile(file)).Get("scan-9")
	if err != nil || !ok {
		t.Fatalf("saved record missing: ok=%v err=%v", ok, err)
	}
	if rec.Mode != models.ModeCamera || rec.ImageURL != imagePath {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestScanCommandReportsBackendFailure(t *testing.T) {
	clearEnv(t)
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"detail":"model not loaded"}`)
	}))
	defer backend.Close()

	imagePath := filepath.Join(t.TempDir(), "bill.jpg")
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 8, 4)), nil); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(imagePath, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := run(t, "", "--api-url", backend.URL, "scan", imagePath)
	if err == nil || !strings.Contains(err.Error(), "model not loaded") {
		t.Errorf("err = %v, want the backend detail", err)
	}
}
