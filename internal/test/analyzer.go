package test

import "context"

// FakeAnalyzer replays canned analyzer output instead of spawning a process.
type FakeAnalyzer struct {
	// Output is returned for every call when Outputs is empty.
	Output []byte
	// Outputs maps a source directory suffix to the output for that call.
	Outputs map[string][]byte
	// Err is returned as-is when set.
	Err error
	// Calls records the source directories in invocation order.
	Calls []string
}

// Analyze implements the analyzer contract over the canned data.
func (f *FakeAnalyzer) Analyze(ctx context.Context, sourceDir, rulesetPath string) ([]byte, error) {
	f.Calls = append(f.Calls, sourceDir)
	if f.Err != nil {
		return nil, f.Err
	}
	for suffix, output := range f.Outputs {
		if len(sourceDir) >= len(suffix) && sourceDir[len(sourceDir)-len(suffix):] == suffix {
			return output, nil
		}
	}
	return f.Output, nil
}
