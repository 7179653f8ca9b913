package rbac

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"gopkg.in/yaml.v3"
)

//go:embed model.conf
var modelConf string

//go:embed roles.yaml
var defaultTable []byte

type tableFile struct {
	Roles map[string][]string `yaml:"roles"`
}

// Table maps every role to its permission set. It is read-only once built.
type Table struct {
	perms    map[Role][]string
	enforcer *casbin.SyncedEnforcer
}

// DefaultTable builds the table shipped with the binary.
func DefaultTable() (*Table, error) {
	return ParseTable(defaultTable)
}

// LoadTable reads a YAML role table from path. An empty path yields the default table.
func LoadTable(path string) (*Table, error) {
	if strings.TrimSpace(path) == "" {
		return DefaultTable()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rbac: read role table: %w", err)
	}
	return ParseTable(data)
}

// ParseTable decodes a YAML role table.
func ParseTable(data []byte) (*Table, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("rbac: parse role table: %w", err)
	}
	grants := make(map[Role][]string, len(file.Roles))
	for raw, perms := range file.Roles {
		role, err := ParseRole(raw)
		if err != nil {
			return nil, err
		}
		grants[role] = perms
	}
	return NewTable(grants)
}

// NewTable builds a Table. Every known role must have an entry, possibly empty.
func NewTable(grants map[Role][]string) (*Table, error) {
	m, err := model.NewModelFromString(modelConf)
	if err != nil {
		return nil, fmt.Errorf("rbac: parse casbin model: %w", err)
	}
	e, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("rbac: create casbin enforcer: %w", err)
	}

	perms := make(map[Role][]string, len(grants))
	var rules [][]string
	for _, role := range Roles() {
		granted, ok := grants[role]
		if !ok {
			return nil, fmt.Errorf("rbac: role %q missing from permission table", role)
		}
		normalized := normalizePermissions(granted)
		sort.Strings(normalized)
		perms[role] = normalized
		for _, p := range normalized {
			rules = append(rules, []string{string(role), p})
		}
	}
	for role := range grants {
		if !role.Valid() {
			return nil, fmt.Errorf("rbac: unknown role %q", role)
		}
	}
	if len(rules) > 0 {
		if _, err := e.AddPolicies(rules); err != nil {
			return nil, fmt.Errorf("rbac: load policies: %w", err)
		}
	}
	return &Table{perms: perms, enforcer: e}, nil
}

// Permissions returns a copy of the permissions granted to role.
func (t *Table) Permissions(role Role) []string {
	granted := t.perms[role]
	out := make([]string, len(granted))
	copy(out, granted)
	return out
}

// Allows reports whether perm is a member of role's permission set.
func (t *Table) Allows(role Role, perm string) bool {
	if t == nil || !role.Valid() || perm == "" {
		return false
	}
	ok, err := t.enforcer.Enforce(string(role), perm)
	if err != nil {
		return false
	}
	return ok
}

// Snapshot returns the full table keyed by role name.
func (t *Table) Snapshot() map[string][]string {
	out := make(map[string][]string, len(t.perms))
	for role := range t.perms {
		out[string(role)] = t.Permissions(role)
	}
	return out
}
