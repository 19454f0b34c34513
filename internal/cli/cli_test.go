package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sampleTranscript = `{
  "text": "Hello there. Hi.",
  "segments": [
    {"start": 0, "end": 1.5, "text": " Hello there.", "speaker": "SPEAKER_00"},
    {"start": 1.5, "end": 2.25, "text": " Hi.", "speaker": "SPEAKER_01"}
  ]
}`

func execute(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestFormatFromStdin(t *testing.T) {
	out, err := execute(t, sampleTranscript, "format", "--format", "md_table")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	want := "| SPEAKER_00 | SPEAKER_01 |\n| --- | --- |\n| Hello there. |  |\n|  | Hi. |"
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestFormatFileToFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "t.json")
	outPath := filepath.Join(dir, "t.srt")
	if err := os.WriteFile(in, []byte(sampleTranscript), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := execute(t, "", "format", "-i", in, "-o", outPath, "-f", "srt"); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	data, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	want := "1\n00:00:00,000 --> 00:00:01,500\n[SPEAKER_00]: Hello there.\n\n2\n00:00:01,500 --> 00:00:02,250\n[SPEAKER_01]: Hi.\n\n"
	if string(data) != want {
		t.Errorf("expected %q, got %q", want, data)
	}
}

func TestFormatTimestamps(t *testing.T) {
	out, err := execute(t, sampleTranscript, "format", "-f", "md_quote", "--timestamps")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	want := "> **SPEAKER_00** [00:00]: Hello there.\n>\n> **SPEAKER_01** [00:01]: Hi."
	if out != want {
		t.Errorf("expected %q, got %q", want, out)
	}
}

func TestFormatRejectsUnknownFormat(t *testing.T) {
	_, err := execute(t, sampleTranscript, "format", "-f", "docx")
	if err == nil || !strings.Contains(err.Error(), "unsupported format") {
		t.Fatalf("expected unsupported format error, got %v", err)
	}
}

func TestFormatRejectsBadTranscript(t *testing.T) {
	if _, err := execute(t, `{"segments": 3}`, "format"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFormatsLists(t *testing.T) {
	out, err := execute(t, "", "formats")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 11 {
		t.Fatalf("expected 11 formats, got %d: %q", len(lines), out)
	}
	if !strings.HasPrefix(lines[5], "vtt ") || !strings.HasSuffix(lines[5], "text/vtt") {
		t.Errorf("unexpected vtt line %q", lines[5])
	}
}

func TestKeysCheck(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.json")
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(good, []byte(`{"sk-1":"web","sk-2":"mobile"}`), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(bad, []byte(`{"sk-secret":""}`), 0o600); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "", "keys", "check", "--file", good)
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if out != "2 keys ok: mobile, web\n" {
		t.Errorf("unexpected output %q", out)
	}

	_, err = execute(t, "", "keys", "check", "--file", bad)
	if err == nil || !strings.Contains(err.Error(), "sk-s****") {
		t.Fatalf("expected redacted key in error, got %v", err)
	}
	if strings.Contains(err.Error(), "sk-secret") {
		t.Fatal("key leaked into error message")
	}
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "", "version")
	if err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
	if out != "scribe version dev (commit: unknown)\n" {
		t.Errorf("unexpected output %q", out)
	}
}
