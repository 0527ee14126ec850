package reconcile

import (
	"context"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"concilia/internal/domain"
)

const DefaultWorkers = 4

// Reconciler is the unit of work the pool fans out.
type Reconciler interface {
	Reconcile(ctx context.Context, in CaseInput) (*domain.UnifiedMetadataRecord, error)
}

// Result is the outcome of one input of a batch.
type Result struct {
	CaseID string
	Record *domain.UnifiedMetadataRecord
	Err    error
}

// Pool reconciles a batch of cases with bounded parallelism, one task per
// case. Inputs for the same case, compared after trimming whitespace, run
// sequentially inside one task so at most one pass per case is in flight.
type Pool struct {
	reconciler Reconciler
	workers    int
	logger     *slog.Logger
}

func NewPool(reconciler Reconciler, workers int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{reconciler: reconciler, workers: workers, logger: logger}
}

// Run returns one Result per input, in input order. A failing case does not
// stop the others; cancelling ctx marks every case not yet started as
// failed with ctx.Err().
func (p *Pool) Run(ctx context.Context, inputs []CaseInput) []Result {
	results := make([]Result, len(inputs))
	byCase := make(map[string][]int)
	var order []string
	for i, in := range inputs {
		caseID := strings.TrimSpace(in.CaseID)
		results[i].CaseID = caseID
		if _, seen := byCase[caseID]; !seen {
			order = append(order, caseID)
		}
		byCase[caseID] = append(byCase[caseID], i)
	}

	var g errgroup.Group
	g.SetLimit(p.workers)
	for _, caseID := range order {
		indexes := byCase[caseID]
		g.Go(func() error {
			for _, i := range indexes {
				if err := ctx.Err(); err != nil {
					results[i].Err = err
					continue
				}
				in := inputs[i]
				in.CaseID = caseID
				record, err := p.reconciler.Reconcile(ctx, in)
				results[i].Record = record
				results[i].Err = err
				if err != nil {
					p.logger.WarnContext(ctx, "case reconciliation failed",
						"case_id", caseID,
						"error", err,
					)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
	return results
}
