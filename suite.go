package ldfmock

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"golang.org/x/sync/errgroup"
)

// TestStatus is the outcome of one test case in a suite run.
type TestStatus int

const (
	TestPassed TestStatus = iota
	TestFailed
	TestSkipped
)

func (s TestStatus) String() string {
	switch s {
	case TestPassed:
		return "passed"
	case TestFailed:
		return "failed"
	case TestSkipped:
		return "skipped"
	}
	return "unknown"
}

// TestResult reports one test case of a suite run.
type TestResult struct {
	Test     *TestCase
	Status   TestStatus
	Duration time.Duration
	Err      error
}

// SuiteOptions control RunSuite.
type SuiteOptions struct {
	// Parallelism bounds how many test cases run at once. Each running case
	// holds one port.
	Parallelism int

	// Filter selects test cases with a boolean expression over name, uri,
	// mockFolder, query and sourceTypes, e.g.
	//
	//	"TPF" in sourceTypes && !(name contains "optional")
	//
	// Empty runs every case.
	Filter string
}

// RunSuite evaluates cases and returns one result per case, in input order.
// Failing cases do not stop the run. Only an invalid filter or a canceled ctx
// fails the run itself.
func RunSuite(ctx context.Context, factory *MockerFactory, engine Engine, cases []*TestCase, opts SuiteOptions) ([]TestResult, error) {
	program, err := compileFilter(opts.Filter)
	if err != nil {
		return nil, err
	}

	limit := opts.Parallelism
	if limit <= 0 {
		limit = 1
	}

	results := make([]TestResult, len(cases))
	var g errgroup.Group
	g.SetLimit(limit)

	for i, tc := range cases {
		results[i].Test = tc

		selected, err := isSelected(program, tc)
		if err != nil {
			results[i].Status = TestFailed
			results[i].Err = err
			continue
		}
		if !selected {
			results[i].Status = TestSkipped
			logDebug(factory.Logger, "skip test", "test", tc.URI)
			continue
		}

		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Status = TestFailed
				results[i].Err = err
				return nil
			}
			duration, err := Evaluate(ctx, factory, engine, tc)
			results[i].Duration = duration
			if err != nil {
				results[i].Status = TestFailed
				results[i].Err = err
				logError(factory.Logger, "test failed", "test", tc.URI, "error", err)
				return nil
			}
			results[i].Status = TestPassed
			logInfo(factory.Logger, "test passed", "test", tc.URI, "duration", duration)
			return nil
		})
	}
	_ = g.Wait()

	return results, ctx.Err()
}

func filterEnv(tc *TestCase) map[string]interface{} {
	var name, uri, mockFolder, query string
	var sourceTypes []string
	if tc != nil {
		name, uri, mockFolder, query = tc.Name, tc.URI, tc.MockFolder, tc.QueryString
		sourceTypes = unique(mapTo(tc.DataSources, func(s DataSource) string { return s.Type.String() }))
	}
	return map[string]interface{}{
		"name":        name,
		"uri":         uri,
		"mockFolder":  mockFolder,
		"query":       query,
		"sourceTypes": sourceTypes,
	}
}

func compileFilter(filter string) (*vm.Program, error) {
	if filter == "" {
		return nil, nil
	}
	program, err := expr.Compile(filter, expr.Env(filterEnv(nil)), expr.AsBool())
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidConfig, "filter %q: %v", filter, err)
	}
	return program, nil
}

func isSelected(program *vm.Program, tc *TestCase) (bool, error) {
	if program == nil {
		return true, nil
	}
	out, err := expr.Run(program, filterEnv(tc))
	if err != nil {
		return false, errors.Wrapf(err, "evaluate filter for %s", tc.URI)
	}
	return out.(bool), nil
}
