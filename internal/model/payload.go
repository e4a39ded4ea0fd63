package model

// BlockedResource names one external process that prevents a run from
// proceeding.
type BlockedResource struct {
	Kind string `json:"kind"` // e.g. "CodeBuild", "CodePipeline"
	Name string `json:"name"`
}

// GateResult is the outcome of a concurrency-gate check: the subset of
// watched resources currently busy. Empty means the run may proceed.
type GateResult struct {
	Blocking []BlockedResource `json:"blocking,omitempty"`
}

// Clear reports whether nothing is blocking.
func (g GateResult) Clear() bool {
	return len(g.Blocking) == 0
}

// ProvisionedAccount is the resolved identity of the account once the
// catalog reports it available.
type ProvisionedAccount struct {
	AccountID            string `json:"account_id"`
	ProvisionedProductID string `json:"provisioned_product_id"`
	Name                 string `json:"name"`
}

// RunOutput is the terminal payload of a successful account-creation run.
type RunOutput struct {
	Account           ProvisionedAccount `json:"account"`
	ExecutionID       string             `json:"execution_id,omitempty"`
	ValidationStatus  string             `json:"validation_status"`
	ValidationResults []ValidationResult `json:"validation_results"`
	GroupAssignments  []string           `json:"group_assignments,omitempty"`
}
