package registration

// =============================================================================
// BATCH INDEX - id lookups built once per batch
// =============================================================================

// Index holds the members and groups the actor may act on, keyed by id.
type Index struct {
	Members map[MemberID]Member
	Groups  map[GroupID]Group
}

// NewIndex builds lookups from the actor's household and organization groups.
func NewIndex(members []Member, groups []Group) *Index {
	idx := &Index{
		Members: make(map[MemberID]Member, len(members)),
		Groups:  make(map[GroupID]Group, len(groups)),
	}
	for _, m := range members {
		idx.Members[m.ID] = m
	}
	for _, g := range groups {
		idx.Groups[g.ID] = g
	}
	return idx
}

// Resolve returns the member and group an item refers to.
func (idx *Index) Resolve(item Item) (Member, Group, error) {
	m, ok := idx.Members[item.MemberID]
	if !ok {
		return Member{}, Group{}, unknownMemberError(item.MemberID)
	}
	g, ok := idx.Groups[item.GroupID]
	if !ok {
		return Member{}, Group{}, unknownGroupError(item.GroupID)
	}
	return m, g, nil
}

// =============================================================================
// BATCH ORDERER
// =============================================================================

// OrderBatch moves items targeting groups with a family price behind all
// other items, keeping relative order within both partitions. The family
// counter has then already counted the non-family enrollments when the
// family-priced groups are priced.
func OrderBatch(items []Item, idx *Index) ([]Item, error) {
	plain := make([]Item, 0, len(items))
	var family []Item
	for _, item := range items {
		_, g, err := idx.Resolve(item)
		if err != nil {
			return nil, err
		}
		if g.HasFamilyPrice() {
			family = append(family, item)
		} else {
			plain = append(plain, item)
		}
	}
	return append(plain, family...), nil
}
