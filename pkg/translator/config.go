package translator

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultEntry is the function the book's operating system starts in.
const DefaultEntry = "Sys.init"

// Config selects what the translator emits.
type Config struct {
	// Bootstrap emits the SP initialisation and the call to EntryFunction
	// ahead of the first module.
	Bootstrap bool `yaml:"bootstrap"`
	// Optimize routes generation through the peephole optimizer.
	Optimize bool `yaml:"optimize"`
	// PruneDeadFunctions leaves out functions unreachable from the roots.
	PruneDeadFunctions bool `yaml:"prune_dead_functions"`
	// EntryFunction is the bootstrap call target and the first root.
	EntryFunction string `yaml:"entry_function"`
	// InitFunctions are extra roots, honoured when Bootstrap is set.
	InitFunctions []string `yaml:"init_functions,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		Bootstrap:     true,
		EntryFunction: DefaultEntry,
	}
}

// LoadConfig reads a YAML config file. Keys missing from the file keep
// their DefaultConfig values.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return ParseConfig(data)
}

func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports settings the translator cannot act on.
func (c Config) Validate() error {
	if (c.Bootstrap || c.PruneDeadFunctions) && c.EntryFunction == "" {
		return errors.New("config: entry_function is required for bootstrap and pruning")
	}
	for _, name := range c.InitFunctions {
		if name == "" {
			return errors.New("config: init_functions contains an empty name")
		}
	}
	return nil
}

// Roots are the names reachability starts from.
func (c Config) Roots() []string {
	roots := []string{c.EntryFunction}
	if c.Bootstrap {
		roots = append(roots, c.InitFunctions...)
	}
	return roots
}
