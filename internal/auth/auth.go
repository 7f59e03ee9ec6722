package auth

import "sort"

// Authorizer answers admin checks. Everybody else is an ordinary customer.
type Authorizer struct {
	adminIDs map[int64]bool
}

func NewAuthorizer(admins []int64) *Authorizer {
	adminMap := make(map[int64]bool, len(admins))
	for _, id := range admins {
		adminMap[id] = true
	}
	return &Authorizer{adminIDs: adminMap}
}

func (a *Authorizer) IsAdmin(userID int64) bool {
	return a.adminIDs[userID]
}

// AdminIDs returns the admin ids in ascending order.
func (a *Authorizer) AdminIDs() []int64 {
	ids := make([]int64, 0, len(a.adminIDs))
	for id := range a.adminIDs {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
