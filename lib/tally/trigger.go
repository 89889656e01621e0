package tally

/* trigger.go contains the convergence triggers evaluated at batch
boundaries. Triggers let a run stop before its batch budget once the tracked
statistics are precise enough. */

// Trigger fires once the relative standard error of a metric drops to or
// below RelErr.
type Trigger struct {
	Metric Metric
	RelErr float64
}

// Satisfied reports whether the trigger's criterion holds for the current
// accumulation. With fewer than two realizations RelStdErr is +Inf, so a
// trigger can never fire before a spread estimate exists.
func (tr Trigger) Satisfied(g *Global) bool {
	return g.RelStdErr(tr.Metric) <= tr.RelErr
}

// Evaluator decides at each batch boundary whether every configured trigger
// is satisfied. Only the master rank evaluates; the decision is broadcast so
// all ranks branch identically.
type Evaluator struct {
	Triggers []Trigger
}

// Satisfied returns true when at least one trigger is configured and all of
// them hold. With no triggers configured the run always continues to its
// batch budget.
func (e *Evaluator) Satisfied(g *Global) bool {
	if e == nil || len(e.Triggers) == 0 {
		return false
	}
	for _, tr := range e.Triggers {
		if !tr.Satisfied(g) {
			return false
		}
	}
	return true
}
