// Package targetstate models the declarative landing-zone configuration the
// deployment pipeline consumes: a list of named account entries plus a
// catalog of valid organizational units. The document is external state and
// is read-modify-written once per run.
package targetstate

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

const (
	// AccountsConfigFile is the document holding the account list.
	AccountsConfigFile = "accounts-config.yaml"
	// OrganizationConfigFile is the document holding the OU catalog.
	OrganizationConfigFile = "organization-config.yaml"

	accountsKey = "workloadAccounts"
)

// AccountEntry is one account in the accounts config.
type AccountEntry struct {
	Name               string `yaml:"name" json:"name"`
	Description        string `yaml:"description" json:"description"`
	Email              string `yaml:"email" json:"email"`
	OrganizationalUnit string `yaml:"organizationalUnit" json:"organizational_unit"`
}

// AccountsDocument wraps the parsed accounts config. The full YAML tree is
// retained so keys this service does not manage survive the round trip.
type AccountsDocument struct {
	root yaml.Node
}

// ParseAccountsDocument parses the accounts config document.
func ParseAccountsDocument(data []byte) (*AccountsDocument, error) {
	d := &AccountsDocument{}
	if err := yaml.Unmarshal(data, &d.root); err != nil {
		return nil, fmt.Errorf("parse %s: %w", AccountsConfigFile, err)
	}
	if _, err := d.accountsNode(); err != nil {
		return nil, err
	}
	return d, nil
}

// accountsNode returns the sequence node holding the account entries.
func (d *AccountsDocument) accountsNode() (*yaml.Node, error) {
	if d.root.Kind != yaml.DocumentNode || len(d.root.Content) == 0 {
		return nil, fmt.Errorf("%s: empty document", AccountsConfigFile)
	}
	mapping := d.root.Content[0]
	if mapping.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%s: top level is not a mapping", AccountsConfigFile)
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value != accountsKey {
			continue
		}
		val := mapping.Content[i+1]
		if val.Kind == yaml.SequenceNode {
			return val, nil
		}
		// A null value means no accounts yet; normalize to a sequence.
		if val.Tag == "!!null" {
			*val = yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
			return val, nil
		}
		return nil, fmt.Errorf("%s: %s is not a list", AccountsConfigFile, accountsKey)
	}
	return nil, fmt.Errorf("%s: missing %s", AccountsConfigFile, accountsKey)
}

// Entries decodes all account entries.
func (d *AccountsDocument) Entries() ([]AccountEntry, error) {
	seq, err := d.accountsNode()
	if err != nil {
		return nil, err
	}
	entries := make([]AccountEntry, 0, len(seq.Content))
	for _, item := range seq.Content {
		var e AccountEntry
		if err := item.Decode(&e); err != nil {
			return nil, fmt.Errorf("decode account entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Lookup finds an entry by exact name match.
func (d *AccountsDocument) Lookup(name string) (AccountEntry, bool) {
	entries, err := d.Entries()
	if err != nil {
		return AccountEntry{}, false
	}
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return AccountEntry{}, false
}

// Merge adds entry to the document. If an entry with the same name already
// exists the merge fails with DuplicateEntryError unless forceUpdate is set,
// in which case the existing entry is overwritten in place. The document is
// left unmodified on error.
func (d *AccountsDocument) Merge(entry AccountEntry, forceUpdate bool) error {
	seq, err := d.accountsNode()
	if err != nil {
		return err
	}

	idx := -1
	for i, item := range seq.Content {
		var e AccountEntry
		if err := item.Decode(&e); err != nil {
			return fmt.Errorf("decode account entry: %w", err)
		}
		if e.Name == entry.Name {
			idx = i
			break
		}
	}

	if idx >= 0 && !forceUpdate {
		var existing AccountEntry
		_ = seq.Content[idx].Decode(&existing)
		return &DuplicateEntryError{Name: entry.Name, Existing: existing}
	}

	node := &yaml.Node{}
	if err := node.Encode(entry); err != nil {
		return fmt.Errorf("encode account entry: %w", err)
	}

	if idx >= 0 {
		seq.Content[idx] = node
	} else {
		seq.Content = append(seq.Content, node)
	}
	return nil
}

// Marshal serializes the document back to YAML.
func (d *AccountsDocument) Marshal() ([]byte, error) {
	out, err := yaml.Marshal(&d.root)
	if err != nil {
		return nil, fmt.Errorf("marshal %s: %w", AccountsConfigFile, err)
	}
	return out, nil
}

// OrganizationConfig is the catalog of valid organizational units.
type OrganizationConfig struct {
	OrganizationalUnits []OrganizationalUnit `yaml:"organizationalUnits"`
}

// OrganizationalUnit is one entry in the OU catalog.
type OrganizationalUnit struct {
	Name string `yaml:"name"`
}

// ParseOrganizationConfig parses the organization config document.
func ParseOrganizationConfig(data []byte) (*OrganizationConfig, error) {
	var cfg OrganizationConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", OrganizationConfigFile, err)
	}
	return &cfg, nil
}

// PlacementNames returns all valid placement names.
func (c *OrganizationConfig) PlacementNames() []string {
	names := make([]string, 0, len(c.OrganizationalUnits))
	for _, ou := range c.OrganizationalUnits {
		names = append(names, ou.Name)
	}
	return names
}

// ValidatePlacement fails with InvalidPlacementError when the placement is
// not in the OU catalog. This must run before Merge so a bad placement never
// reaches the accounts document.
func (c *OrganizationConfig) ValidatePlacement(placement string) error {
	for _, ou := range c.OrganizationalUnits {
		if ou.Name == placement {
			return nil
		}
	}
	return &InvalidPlacementError{Placement: placement, Known: c.PlacementNames()}
}
