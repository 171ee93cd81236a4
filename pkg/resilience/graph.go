// SPDX-License-Identifier: Apache-2.0
package resilience

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/jllopis/agentnet/pkg/errors"
)

// Job is a named unit of work that may depend on other jobs.
type Job struct {
	Name      string
	DependsOn []string
	Run       func(ctx context.Context, deps map[string]any) (any, error)
}

// JobResult is the outcome of one job.
type JobResult struct {
	Name  string
	Value any
	Err   error
}

// RunGraph executes jobs respecting DependsOn with at most maxConcurrency
// running at once. Jobs naming an unknown dependency fail with
// DEPENDENCY_NOT_FOUND; dependents of a failed job fail with DEPENDENCY_FAILED
// without running. Cycles are rejected up front with a VALIDATION_ERROR.
func RunGraph(ctx context.Context, jobs []Job, maxConcurrency int) (map[string]JobResult, error) {
	byName := make(map[string]Job, len(jobs))
	for _, job := range jobs {
		if job.Name == "" {
			return nil, errors.Validation("job name is required")
		}
		if _, dup := byName[job.Name]; dup {
			return nil, errors.Validation("duplicate job %q", job.Name)
		}
		byName[job.Name] = job
	}
	if cycle := findCycle(byName); cycle != "" {
		return nil, errors.Validation("dependency cycle through job %q", cycle)
	}
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}

	sem := semaphore.NewWeighted(int64(maxConcurrency))
	done := make(map[string]chan struct{}, len(jobs))
	for name := range byName {
		done[name] = make(chan struct{})
	}

	var (
		mu      sync.Mutex
		results = make(map[string]JobResult, len(jobs))
		wg      sync.WaitGroup
	)
	finish := func(r JobResult) {
		mu.Lock()
		results[r.Name] = r
		mu.Unlock()
		close(done[r.Name])
	}

	for _, job := range byName {
		wg.Add(1)
		go func(job Job) {
			defer wg.Done()

			deps := make(map[string]any, len(job.DependsOn))
			for _, dep := range job.DependsOn {
				ch, ok := done[dep]
				if !ok {
					finish(JobResult{Name: job.Name, Err: errors.New(errors.CodeDependencyNotFound, "unknown dependency", nil).
						WithContext("job", job.Name).
						WithContext("dependency", dep)})
					return
				}
				select {
				case <-ch:
				case <-ctx.Done():
					finish(JobResult{Name: job.Name, Err: errors.New(errors.CodeContextLost, "graph canceled", ctx.Err())})
					return
				}
				mu.Lock()
				upstream := results[dep]
				mu.Unlock()
				if upstream.Err != nil {
					finish(JobResult{Name: job.Name, Err: errors.New(errors.CodeDependencyFailed, "dependency failed", upstream.Err).
						WithContext("job", job.Name).
						WithContext("dependency", dep)})
					return
				}
				deps[dep] = upstream.Value
			}

			if err := sem.Acquire(ctx, 1); err != nil {
				finish(JobResult{Name: job.Name, Err: errors.New(errors.CodeContextLost, "graph canceled", err)})
				return
			}
			value, err := safeCall(ctx, deps, job.Run)
			sem.Release(1)
			finish(JobResult{Name: job.Name, Value: value, Err: err})
		}(job)
	}
	wg.Wait()
	return results, nil
}

// findCycle returns the name of a job on a dependency cycle, or "".
// Unknown dependencies are ignored here and reported when the job runs.
func findCycle(jobs map[string]Job) string {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(jobs))
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	var visit func(name string) string
	visit = func(name string) string {
		switch state[name] {
		case visiting:
			return name
		case visited:
			return ""
		}
		state[name] = visiting
		for _, dep := range jobs[name].DependsOn {
			if _, ok := jobs[dep]; !ok {
				continue
			}
			if c := visit(dep); c != "" {
				return c
			}
		}
		state[name] = visited
		return ""
	}
	for _, name := range names {
		if c := visit(name); c != "" {
			return c
		}
	}
	return ""
}
