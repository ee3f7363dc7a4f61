package scan

import (
	"context"
	"errors"
	"strings"
	"testing"

	"sield/internal/config"
	"sield/internal/logging"
)

type fakeRunner struct {
	code int
	out  string
	err  error
	args []string
}

func (f *fakeRunner) Run(_ context.Context, name string, args ...string) (int, []byte, error) {
	f.args = append([]string{name}, args...)
	return f.code, []byte(f.out), f.err
}

func newTestScanner(r commandRunner) *ClamScanner {
	cfg := config.Default()
	s := NewClamScanner(&cfg, logging.NewNop())
	s.runner = r
	return s
}

func TestScanExitCodes(t *testing.T) {
	tests := []struct {
		name    string
		runner  *fakeRunner
		want    Verdict
		wantErr bool
	}{
		{name: "clean", runner: &fakeRunner{code: 0}, want: VerdictClean},
		{name: "infected", runner: &fakeRunner{code: 1, out: "/mnt/x/eicar.com: Eicar-Signature FOUND"}, want: VerdictInfected},
		{name: "database error", runner: &fakeRunner{code: 2, out: "LibClamAV Error"}, want: VerdictError, wantErr: true},
		{name: "not installed", runner: &fakeRunner{code: -1, err: errors.New("executable file not found")}, want: VerdictError, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := newTestScanner(tt.runner).Scan(context.Background(), "/var/lib/sield/scan/sdb1")
			if got != tt.want {
				t.Fatalf("verdict = %s, want %s", got, tt.want)
			}
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestScanPassesRecursiveAndLogFile(t *testing.T) {
	r := &fakeRunner{}
	if _, err := newTestScanner(r).Scan(context.Background(), "/scan/dir"); err != nil {
		t.Fatal(err)
	}
	got := strings.Join(r.args, " ")
	want := "clamscan -r --no-summary -l /var/log/sield-av.log /scan/dir"
	if got != want {
		t.Fatalf("args = %q, want %q", got, want)
	}
}

func TestSummarizeTruncates(t *testing.T) {
	out := strings.Repeat("line\n", 8)
	if got := summarize([]byte(out)); !strings.HasSuffix(got, "(3 more)") {
		t.Fatalf("unexpected summary %q", got)
	}
}
