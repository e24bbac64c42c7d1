package verifier

import (
	"sort"

	"github.com/Harshitk-cp/symstate/internal/domain"
	"go.uber.org/zap"
)

// Options selects the verifiers Build constructs.
type Options struct {
	Enabled   map[string]bool
	Z3Path    string
	LeanPath  string
	External  map[string]string
	FactLimit int
}

// Build returns the enabled verifiers in registration order: z3, lean4,
// datalog, then external verifiers by name. External verifiers must be
// enabled by name like the built-in ones. Executables not given a path
// are auto-detected; verifiers whose executable is missing are still
// returned and report themselves unavailable.
func Build(opts Options, logger *zap.Logger) []domain.Verifier {
	var out []domain.Verifier

	if opts.Enabled["z3"] {
		path := resolvePath(opts.Z3Path, "z3")
		out = append(out, NewZ3(path))
		logDetected(logger, "z3", path)
	}
	if opts.Enabled["lean4"] {
		path := resolvePath(opts.LeanPath, "lean")
		out = append(out, NewLean(path))
		logDetected(logger, "lean4", path)
	}
	if opts.Enabled["datalog"] {
		out = append(out, NewDatalog(opts.FactLimit))
	}

	names := make([]string, 0, len(opts.External))
	for name := range opts.External {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !opts.Enabled[name] {
			logger.Info("external verifier configured but not enabled", zap.String("verifier", name))
			continue
		}
		path := opts.External[name]
		out = append(out, NewExec(name, path))
		logDetected(logger, name, path)
	}
	return out
}

func resolvePath(configured, executable string) string {
	if configured != "" {
		return configured
	}
	if p, ok := Detect(executable); ok {
		return p
	}
	return ""
}

func logDetected(logger *zap.Logger, name, path string) {
	if !isExecutable(path) {
		logger.Warn("verifier executable not found; verifier disabled until installed",
			zap.String("verifier", name), zap.String("path", path))
		return
	}
	logger.Info("verifier executable found", zap.String("verifier", name), zap.String("path", path))
}
