package model

import "strings"

// Tag is a key/value pair attached to the provisioned account.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// ADGroupMapping binds an Active Directory group to a permission set in the
// identity center, granting that group access to the new account.
type ADGroupMapping struct {
	PermissionSetName string `json:"permission_set_name"`
	GroupName         string `json:"group_name"`
}

// ProvisionRequest is the immutable input to one account-creation run.
// AccountName, SupportDL and ManagedOrgUnit are always present; AccountEmail
// is derived from the account name when empty.
type ProvisionRequest struct {
	AccountName    string           `json:"account_name" validate:"required"`
	AccountEmail   string           `json:"account_email,omitempty" validate:"omitempty,email"`
	SupportDL      string           `json:"support_dl" validate:"required,email"`
	ManagedOrgUnit string           `json:"managed_org_unit" validate:"required"`
	AccountTags    []Tag            `json:"account_tags,omitempty"`
	ForceUpdate    bool             `json:"force_update,omitempty"`
	BypassCreation bool             `json:"bypass_creation,omitempty"`
	ADIntegration  []ADGroupMapping `json:"ad_integration,omitempty"`
}

// GroupNames returns the AD group names referenced by the request.
func (r ProvisionRequest) GroupNames() []string {
	names := make([]string, 0, len(r.ADIntegration))
	for _, m := range r.ADIntegration {
		names = append(names, m.GroupName)
	}
	return names
}

// RequiredTags returns the mandatory tag set for the account plus any
// caller-supplied tags.
func (r ProvisionRequest) RequiredTags() []Tag {
	tags := []Tag{
		{Key: "account-name", Value: r.AccountName},
		{Key: "vendor", Value: "aws"},
		{Key: "product-version", Value: "1.0.0"},
		{Key: "support-dl", Value: r.SupportDL},
	}
	return append(tags, r.AccountTags...)
}

// AccountAlias returns the IAM account alias derived from the account name.
// Aliases must be lowercase; spaces become dashes.
func AccountAlias(accountName string) string {
	return strings.ToLower(strings.ReplaceAll(accountName, " ", "-"))
}

// TagParameterName returns the SSM parameter path under which an account
// tag is mirrored inside the member account.
func TagParameterName(key string) string {
	return "/account/tags/" + key
}

// RootEmail builds the root email address for the account from a shared
// prefix and domain, e.g. prefix+My-Account@example.com.
func RootEmail(prefix, domain, accountName string) string {
	domain = strings.TrimPrefix(domain, "@")
	accountName = strings.ReplaceAll(accountName, " ", "-")
	return prefix + "+" + accountName + "@" + domain
}
