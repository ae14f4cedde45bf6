// Package orchestrator owns the page-generation task lifecycle.
package orchestrator

// Config defines orchestrator limits.
type Config struct {
	// MaxConcurrentTasks is the maximum number of page loops running at once.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks" env:"PAGEFORGE_MAX_CONCURRENT_TASKS"`
	// MaxPages bounds the page count of a submitted task.
	MaxPages int `yaml:"max_pages" env:"PAGEFORGE_MAX_PAGES"`
	// MaxBenchmarkPages bounds the page count of a benchmark run.
	MaxBenchmarkPages int `yaml:"max_benchmark_pages" env:"PAGEFORGE_MAX_BENCHMARK_PAGES"`
	// MaxBaseNameLength bounds the length of a task's base name.
	MaxBaseNameLength int `yaml:"max_base_name_length"`
}

// DefaultConfig returns the default orchestrator configuration.
func DefaultConfig() *Config {
	return &Config{
		MaxConcurrentTasks: 10,
		MaxPages:           100,
		MaxBenchmarkPages:  50,
		MaxBaseNameLength:  100,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.MaxConcurrentTasks <= 0 {
		out.MaxConcurrentTasks = d.MaxConcurrentTasks
	}
	if out.MaxPages <= 0 {
		out.MaxPages = d.MaxPages
	}
	if out.MaxBenchmarkPages <= 0 {
		out.MaxBenchmarkPages = d.MaxBenchmarkPages
	}
	if out.MaxBaseNameLength <= 0 {
		out.MaxBaseNameLength = d.MaxBaseNameLength
	}
	return &out
}
