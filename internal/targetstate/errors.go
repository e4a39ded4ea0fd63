package targetstate

import (
	"fmt"
	"strings"
)

// DuplicateEntryError is returned when merging an account whose name already
// exists in the document and force-update is not set. The existing entry is
// carried for operator inspection.
type DuplicateEntryError struct {
	Name     string
	Existing AccountEntry
}

func (e *DuplicateEntryError) Error() string {
	return fmt.Sprintf("account %q already exists in %s (email %s, ou %s) and force update is not set",
		e.Name, AccountsConfigFile, e.Existing.Email, e.Existing.OrganizationalUnit)
}

// InvalidPlacementError is returned when the requested organizational unit
// is not present in the organization config's OU catalog.
type InvalidPlacementError struct {
	Placement string
	Known     []string
}

func (e *InvalidPlacementError) Error() string {
	return fmt.Sprintf("organizational unit %q not found in %s (known: %s)",
		e.Placement, OrganizationConfigFile, strings.Join(e.Known, ", "))
}
