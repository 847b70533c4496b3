package daemon

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

func setupUnitTest(t *testing.T) *[][]string {
	t.Helper()
	oldPath, oldRun := unitPath, runSystemctl
	t.Cleanup(func() { unitPath, runSystemctl = oldPath, oldRun })

	unitPath = filepath.Join(t.TempDir(), "system", unitName)
	var calls [][]string
	runSystemctl = func(args ...string) error {
		calls = append(calls, args)
		return nil
	}
	return &calls
}

func TestRenderUnit(t *testing.T) {
	unit := renderUnit("/usr/local/bin/trackd", "/etc/trackd.json")
	if !strings.Contains(unit, "ExecStart=/usr/local/bin/trackd daemon --config /etc/trackd.json\n") {
		t.Fatalf("unexpected unit:\n%s", unit)
	}
	if strings.Contains(unit, "/path/to/") {
		t.Fatalf("placeholder left in unit:\n%s", unit)
	}
}

func TestInstallUninstall(t *testing.T) {
	calls := setupUnitTest(t)

	if err := installUnit("/opt/trackd", "/etc/trackd.json"); err != nil {
		t.Fatal(err)
	}
	b, err := os.ReadFile(unitPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), "/opt/trackd daemon") {
		t.Fatalf("unit = %s", b)
	}

	if err := Uninstall(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(unitPath); !os.IsNotExist(err) {
		t.Fatalf("unit still present: %v", err)
	}
	// Uninstalling twice only stops the service.
	if err := Uninstall(); err != nil {
		t.Fatal(err)
	}

	want := [][]string{
		{"daemon-reload"},
		{"enable", "--now", unitName},
		{"disable", "--now", unitName},
		{"daemon-reload"},
		{"disable", "--now", unitName},
	}
	if !reflect.DeepEqual(*calls, want) {
		t.Fatalf("systemctl calls = %v, want %v", *calls, want)
	}
}

func TestInstallSystemctlFailure(t *testing.T) {
	setupUnitTest(t)
	runSystemctl = func(args ...string) error {
		if args[0] == "enable" {
			return errors.New("boom")
		}
		return nil
	}

	if err := installUnit("/opt/trackd", "/etc/trackd.json"); err == nil {
		t.Fatal("expected error")
	}
}
