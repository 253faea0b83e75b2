package contacts

import (
	"strings"

	"github.com/luxcrm/relay/internal/utils"
)

// InternalIdentity answers whether an email belongs to our own org rather
// than an external contact. Internal rows never enter the registry.
type InternalIdentity struct {
	domains map[string]struct{}
	users   map[string]struct{}
}

func NewInternalIdentity(domainsCSV, usersCSV string) *InternalIdentity {
	id := &InternalIdentity{
		domains: map[string]struct{}{},
		users:   map[string]struct{}{},
	}
	for _, part := range strings.Split(domainsCSV, ",") {
		if v := strings.ToLower(strings.TrimSpace(part)); v != "" {
			id.domains[v] = struct{}{}
		}
	}
	for _, part := range strings.Split(usersCSV, ",") {
		if v := strings.ToLower(strings.TrimSpace(part)); v != "" {
			id.users[v] = struct{}{}
		}
	}
	return id
}

func NewInternalIdentityFromEnv() *InternalIdentity {
	return NewInternalIdentity(
		utils.GetEnv("INTERNAL_EMAIL_DOMAINS", "luxcrm.ai", nil),
		utils.GetEnv("INTERNAL_USER_EMAILS", "", nil),
	)
}

func (id *InternalIdentity) IsInternalEmail(email string) bool {
	normalized := strings.ToLower(strings.TrimSpace(email))
	if normalized == "" || !strings.Contains(normalized, "@") {
		return false
	}
	if _, ok := id.users[normalized]; ok {
		return true
	}
	domain := normalized[strings.LastIndex(normalized, "@")+1:]
	_, ok := id.domains[domain]
	return ok
}
