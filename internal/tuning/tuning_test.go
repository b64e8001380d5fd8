package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadPartialFileKeepsDefaults(t *testing.T) {
	path := writeFile(t, "living_dex: true\nnav:\n  warp_cycles: 2\n")
	tune, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !tune.LivingDex {
		t.Fatal("living_dex override lost")
	}
	if tune.Nav.WarpCycles != 2 {
		t.Fatalf("warp_cycles = %d, want 2", tune.Nav.WarpCycles)
	}
	def := Defaults()
	if tune.MetAction != def.MetAction {
		t.Fatalf("met_action = %q, want default %q", tune.MetAction, def.MetAction)
	}
	if tune.Nav.DialogPresses != def.Nav.DialogPresses {
		t.Fatalf("dialog_presses = %d, want default %d", tune.Nav.DialogPresses, def.Nav.DialogPresses)
	}
}

func TestLoadRejectsUnknownMetAction(t *testing.T) {
	path := writeFile(t, "met_action: explode\n")
	if _, err := Load(path); err == nil {
		t.Fatal("unknown met_action accepted")
	}
}

func TestLoadMissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if !os.IsNotExist(err) {
		t.Fatalf("err = %v, want not-exist", err)
	}
}
