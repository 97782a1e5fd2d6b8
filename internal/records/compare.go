package records

// Record is implemented by every stored record kind.
type Record interface {
	Experience | Project
}

// SameExperience reports whether two experiences are duplicates. Every field
// except UploadedAt is compared; achievements must match in length and order.
func SameExperience(a, b Experience) bool {
	return a.Role == b.Role &&
		a.Organization == b.Organization &&
		a.Location == b.Location &&
		a.DateRange == b.DateRange &&
		equalLines(a.Achievements, b.Achievements)
}

// SameProject reports whether two projects are duplicates.
func SameProject(a, b Project) bool {
	return a.ProjectName == b.ProjectName &&
		a.Role == b.Role &&
		a.DateRange == b.DateRange &&
		equalLines(a.Details, b.Details)
}

// IsUnique reports whether candidate has no duplicate in existing under same.
func IsUnique[T Record](candidate T, existing []T, same func(a, b T) bool) bool {
	for _, e := range existing {
		if same(candidate, e) {
			return false
		}
	}
	return true
}

// IsUniqueExperience is IsUnique with the experience comparator.
func IsUniqueExperience(candidate Experience, existing []Experience) bool {
	return IsUnique(candidate, existing, SameExperience)
}

// IsUniqueProject is IsUnique with the project comparator.
func IsUniqueProject(candidate Project, existing []Project) bool {
	return IsUnique(candidate, existing, SameProject)
}

// MatchesExperience selects experiences for deletion. It compares role,
// organization and date range only, so it is looser than SameExperience:
// entries that differ only in location or achievements all match.
func MatchesExperience(target DeleteExperience, e Experience) bool {
	return e.Role == target.Role &&
		e.Organization == target.Organization &&
		e.DateRange == target.DateRange
}

// MatchesProject selects projects for deletion by name, role and date range.
func MatchesProject(target DeleteProject, p Project) bool {
	return p.ProjectName == target.ProjectName &&
		p.Role == target.Role &&
		p.DateRange == target.DateRange
}

func equalLines(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
