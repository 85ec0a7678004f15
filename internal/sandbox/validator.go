package sandbox

// Validator runs the layered check pipeline over a command string and
// records each blocking result and each warning-level (not info-level)
// warning in a ViolationStore. Order matters: heredoc
// injection, then dangerous patterns, then critical-path removal, then
// shell metacharacters, then variable injection - the first blocking
// result short-circuits the rest.
type Validator struct {
	store *ViolationStore
}

// NewValidator builds a Validator backed by store. A nil store is replaced
// with a default-capacity store of its own.
func NewValidator(store *ViolationStore) *Validator {
	if store == nil {
		store = NewViolationStore(0)
	}
	return &Validator{store: store}
}

// Store exposes the validator's violation store for read-side consumers
// (the UI's violation panel, doctor-style audits).
func (v *Validator) Store() *ViolationStore {
	return v.store
}

// Result is the validator's final verdict for one command: either the
// first blocking CheckResult encountered, or an aggregate pass carrying
// every warning every check along the way produced.
type Result struct {
	Allowed  bool
	Warnings []Warning
	Reason   string
	Check    CheckType
}

var pipeline = []func(string, Context) CheckResult{
	CheckHeredocInjection,
	CheckDangerousPatterns,
	CheckCriticalPathRemoval,
	CheckShellMetacharacters,
	CheckVariableInjection,
}

// Validate runs the full check pipeline against command. The first
// blocking check's result is returned (and recorded as a Violation);
// otherwise an aggregated pass with every warning collected is returned.
func (v *Validator) Validate(command string, ctx Context) Result {
	var warnings []Warning

	for _, check := range pipeline {
		res := check(command, ctx)
		if !res.Allowed {
			v.store.Record(Violation{
				Type:           ViolationType(res.Check),
				Message:        res.Reason,
				CommandExcerpt: command,
				Severity:       res.Severity,
				Blocked:        true,
			})
			return Result{Allowed: false, Reason: res.Reason, Check: res.Check}
		}
		warnings = append(warnings, res.Warnings...)
	}

	for _, w := range warnings {
		if w.Severity != WarnWarning {
			continue
		}
		v.store.Record(Violation{
			Type:           ViolationType(w.Check),
			Message:        w.Message,
			CommandExcerpt: command,
			Severity:       SeverityLow,
			Blocked:        false,
		})
	}

	return Result{Allowed: true, Warnings: warnings}
}
