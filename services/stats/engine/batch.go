// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// AnalyzeMany runs analyses for independent experiments concurrently.
//
// Description:
//
//	Each analysis is a pure function with no shared mutable state, so
//	experiments parallelize trivially. The context is checked between
//	analyses; a single in-flight analysis is never interrupted (the
//	engine has no suspension points), matching the cooperative model.
//
// Inputs:
//   - ctx: Cancellation for the batch as a whole.
//   - snaps: One snapshot per experiment.
//   - concurrency: Maximum parallel analyses; <= 0 means unbounded.
//
// Outputs:
//   - []*Result: Positional results; entries for failed analyses are nil.
//   - error: The first analysis or context error, or nil.
func (e *Engine) AnalyzeMany(ctx context.Context, snaps []Snapshot, concurrency int) ([]*Result, error) {
	results := make([]*Result, len(snaps))

	g, ctx := errgroup.WithContext(ctx)
	if concurrency > 0 {
		g.SetLimit(concurrency)
	}

	for i := range snaps {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := e.Analyze(snaps[i])
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}
