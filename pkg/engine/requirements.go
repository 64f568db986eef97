package engine

// Requirement is a shared input a step needs before it can run.
type Requirement uint8

const (
	RequireDomain Requirement = iota
	RequirePassphrase
	RequireAdminCredentials
	RequireComputeToken
	RequireDatabaseAPIKey
	RequireEmailAPIKey
	RequireDNSToken
	RequireRepository
	RequireDemoChoice

	requirementCount
)

var requirementNames = [...]string{
	RequireDomain:           "domain",
	RequirePassphrase:       "passphrase",
	RequireAdminCredentials: "admin-credentials",
	RequireComputeToken:     "compute-token",
	RequireDatabaseAPIKey:   "database-api-key",
	RequireEmailAPIKey:      "email-api-key",
	RequireDNSToken:         "dns-token",
	RequireRepository:       "repository",
	RequireDemoChoice:       "demo-choice",
}

func (r Requirement) String() string {
	if r < requirementCount {
		return requirementNames[r]
	}
	return "unknown"
}

// RequirementSet is a bit set of requirements.
type RequirementSet uint32

// Requires builds a set from the given requirements.
func Requires(reqs ...Requirement) RequirementSet {
	var s RequirementSet
	for _, r := range reqs {
		s |= 1 << r
	}
	return s
}

// Union returns the requirements present in either set.
func (s RequirementSet) Union(other RequirementSet) RequirementSet {
	return s | other
}

// Has reports whether r is in the set.
func (s RequirementSet) Has(r Requirement) bool {
	return s&(1<<r) != 0
}

// List returns the members in declaration order, which is the order inputs are asked.
func (s RequirementSet) List() []Requirement {
	var out []Requirement
	for r := Requirement(0); r < requirementCount; r++ {
		if s.Has(r) {
			out = append(out, r)
		}
	}
	return out
}
