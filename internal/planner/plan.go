// Package planner converts an externally produced plan — the output of a
// planning/conversation step that lives outside this service — into a
// runnable model.WorkflowGraph. Compile is pure: no I/O, no LLM calls, no
// clock reads. It only consults the registry to resolve node types.
package planner

// Plan mirrors the shape handed back by the external planner: the apps it
// touched, the trigger that starts the workflow, an ordered list of steps,
// and any inputs the planner could not fill in on its own.
type Plan struct {
	Apps          []string
	Trigger       PlanTrigger
	Steps         []PlanStep
	MissingInputs []MissingInput
}

// PlanTrigger identifies the connector operation that starts the workflow.
type PlanTrigger struct {
	App       string
	Operation string
	Params    map[string]any
}

// PlanStep is one node in the linear chain the plan describes. Role selects
// the node's role prefix (RoleAction by default); Branch is only consulted
// when Role is "branch".
type PlanStep struct {
	ID        string
	App       string
	Operation string
	Role      string
	Params    map[string]any
	Branch    *BranchSpec
}

// BranchSpec carries the routing a branch step adds on top of the implicit
// linear chain: NextByLabel names, for each rule's label (and "default"),
// which later step id continues the chain.
type BranchSpec struct {
	Rules       []BranchRuleSpec
	Default     string
	NextByLabel map[string]string
}

// BranchRuleSpec pairs a condition expression with the label routed to when
// it evaluates true.
type BranchRuleSpec struct {
	Expression string
	Label      string
}

// MissingInput names a parameter the planner could not resolve on its own,
// identified by the step it belongs to and the parameter key. Answer is nil
// until the user supplies one; Compile merges non-nil answers into the
// step's params, keyed by StepID the way the plan's missing_inputs array is
// keyed by id.
type MissingInput struct {
	StepID string
	Key    string
	Answer any
}
