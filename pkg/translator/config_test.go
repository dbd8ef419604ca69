package translator

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseConfig(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		want    Config
		wantErr bool
	}{
		{
			name: "empty file keeps defaults",
			yaml: "",
			want: DefaultConfig(),
		},
		{
			name: "all keys",
			yaml: "bootstrap: false\noptimize: true\nprune_dead_functions: true\nentry_function: Main.main\ninit_functions: [Memory.init, Output.init]\n",
			want: Config{
				Optimize:           true,
				PruneDeadFunctions: true,
				EntryFunction:      "Main.main",
				InitFunctions:      []string{"Memory.init", "Output.init"},
			},
		},
		{
			name: "partial override",
			yaml: "optimize: true\n",
			want: Config{Bootstrap: true, Optimize: true, EntryFunction: DefaultEntry},
		},
		{
			name:    "entry cleared with bootstrap on",
			yaml:    "entry_function: \"\"\n",
			wantErr: true,
		},
		{
			name:    "malformed yaml",
			yaml:    "optimize: [",
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseConfig([]byte(tc.yaml))
			if (err != nil) != tc.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tc.wantErr)
			}
			if !tc.wantErr && !reflect.DeepEqual(got, tc.want) {
				t.Errorf("got %+v; want %+v", got, tc.want)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hackvm.yaml")
	if err := os.WriteFile(path, []byte("prune_dead_functions: true\n"), 0644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if !cfg.PruneDeadFunctions || !cfg.Bootstrap {
		t.Errorf("cfg = %+v", cfg)
	}

	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Errorf("expected error for missing file")
	}
}

func TestRoots(t *testing.T) {
	cfg := Config{EntryFunction: "Sys.init", InitFunctions: []string{"Keyboard.init"}}
	if got := cfg.Roots(); !reflect.DeepEqual(got, []string{"Sys.init"}) {
		t.Errorf("without bootstrap roots = %v", got)
	}
	cfg.Bootstrap = true
	if got := cfg.Roots(); !reflect.DeepEqual(got, []string{"Sys.init", "Keyboard.init"}) {
		t.Errorf("with bootstrap roots = %v", got)
	}
}
