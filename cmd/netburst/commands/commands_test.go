package commands

import (
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/routelab/netburst/internal/config"
	"github.com/routelab/netburst/internal/safety"
)

func TestParsePorts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    []uint16
		wantErr bool
	}{
		{"80", []uint16{80}, false},
		{"80,443", []uint16{80, 443}, false},
		{" 80 , 443 ", []uint16{80, 443}, false},
		{"", nil, true},
		{"0", nil, true},
		{"70000", nil, true},
		{"80,abc", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()

			got, err := parsePorts(tt.in)
			if tt.wantErr {
				if !errors.Is(err, errPortsFlag) {
					t.Errorf("parsePorts(%q) = %v, want errPortsFlag", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("parsePorts(%q): %v", tt.in, err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parsePorts(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestExitCodeTaxonomy(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"privilege", safety.ErrPrivilege, exitPrivilege},
		{"ip range", safety.ErrInvalidIPRange, exitValidation},
		{"ceiling", &safety.LimitError{Field: "threads", Value: 10_000, Limit: 100}, exitValidation},
		{"missing target", config.ErrMissingTarget, exitValidation},
		{"unknown field", config.ErrUnknownField, exitValidation},
		{"bad ports flag", errPortsFlag, exitValidation},
		{"runtime", errors.New("socket melted"), exitRuntime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if tt.err == nil {
				return // Execute handles nil before exitCode
			}
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestTemplateCommandOutputsYAML(t *testing.T) {
	t.Parallel()

	cmd := templateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"basic"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("192.168.1.1")) {
		t.Errorf("template output missing target IP:\n%s", out.String())
	}
	if !bytes.Contains(out.Bytes(), []byte("dry_run: true")) {
		t.Errorf("template is not dry-run:\n%s", out.String())
	}
}

func TestTemplateCommandListsNames(t *testing.T) {
	t.Parallel()

	cmd := templateCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, name := range config.Templates() {
		if !bytes.Contains(out.Bytes(), []byte(name)) {
			t.Errorf("template list missing %q:\n%s", name, out.String())
		}
	}
}

func TestHints(t *testing.T) {
	t.Parallel()

	if h := hint(safety.ErrPrivilege); h == "" {
		t.Error("no hint for privilege errors")
	}
	if h := hint(safety.ErrInvalidIPRange); h == "" {
		t.Error("no hint for IP range errors")
	}
	if h := hint(errors.New("other")); h != "" {
		t.Errorf("unexpected hint %q for unclassified error", h)
	}
}
