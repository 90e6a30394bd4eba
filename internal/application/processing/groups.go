package processing

import "strings"

// ProductGroup is the assortment bucket a line item falls into. The two
// buckets drive warehouse and project assignment for commerce invoices.
type ProductGroup string

const (
	GroupTube    ProductGroup = "трубы"
	GroupProfile ProductGroup = "профиль"
)

// groupAssignments binds each bucket to its warehouse and project. This is
// business policy, not configuration.
var groupAssignments = map[ProductGroup]struct {
	Store   string
	Project string
}{
	GroupTube:    {Store: "Сестрорецк ПП", Project: "Трубы"},
	GroupProfile: {Store: "Гатчина", Project: "Профили"},
}

// classifyText matches the bucket keyword stems in free text.
func classifyText(s string) (ProductGroup, bool) {
	lower := strings.ToLower(s)
	if strings.Contains(lower, "труб") {
		return GroupTube, true
	}
	if strings.Contains(lower, "профил") {
		return GroupProfile, true
	}
	return "", false
}

// ClassifyProduct assigns a bucket using the catalog folder path first, then
// the item name, then the article. Unmatched products land in the profile
// bucket.
func ClassifyProduct(folderPath, name, article string) ProductGroup {
	for _, s := range []string{folderPath, name, article} {
		if group, ok := classifyText(s); ok {
			return group
		}
	}
	return GroupProfile
}

// MajorityGroup picks the bucket holding the strict majority. Ties and empty
// input fall back to the profile bucket.
func MajorityGroup(groups []ProductGroup) ProductGroup {
	var tubes, profiles int
	for _, g := range groups {
		switch g {
		case GroupTube:
			tubes++
		case GroupProfile:
			profiles++
		}
	}
	if tubes > profiles {
		return GroupTube
	}
	return GroupProfile
}

// GroupAssignment returns the warehouse and project names for a bucket.
func GroupAssignment(group ProductGroup) (store, project string) {
	a, ok := groupAssignments[group]
	if !ok {
		a = groupAssignments[GroupProfile]
	}
	return a.Store, a.Project
}
