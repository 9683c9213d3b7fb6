package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"
)

// BatchRequests expands template into one request per input. With an output
// directory every input is written there under its own base name, forced to
// the .dcm extension.
func BatchRequests(template Request, inputs []string, outputDir string) ([]Request, error) {
	reqs := make([]Request, 0, len(inputs))
	seen := make(map[string]string, len(inputs))
	for _, in := range inputs {
		req := template
		req.Input = in
		req.Output = ""
		if outputDir != "" {
			base := strings.TrimSuffix(filepath.Base(in), filepath.Ext(in)) + ".dcm"
			out := filepath.Join(outputDir, base)
			if prev, dup := seen[out]; dup {
				return nil, fmt.Errorf("inputs %s and %s would both be written to %s", prev, in, out)
			}
			seen[out] = in
			req.Output = out
		}
		reqs = append(reqs, req)
	}
	return reqs, nil
}

// RunBatch runs independent requests with at most concurrency in flight.
// Each request gets its own plan builder. The first failure cancels the runs
// that have not started; results of finished runs are kept in input order and
// unfinished entries are nil.
func (r *Runner) RunBatch(ctx context.Context, reqs []Request, concurrency int) ([]*Result, error) {
	if concurrency < 1 {
		concurrency = 1
	}
	results := make([]*Result, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Run(gctx, req)
			if err != nil {
				return fmt.Errorf("%s: %w", req.Input, err)
			}
			results[i] = res
			return nil
		})
	}
	return results, g.Wait()
}
