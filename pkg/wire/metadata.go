// ABOUTME: Metadata delta diffing and merging shared by the session engine and the receiver
// ABOUTME: Scalar fields compare by equality, list fields compare element-wise including order
package wire

// stringSliceEqual compares two string slices element-wise, including order.
func stringSliceEqual(a, b []string) bool {
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

// DiffMetadata compares candidate against cached field-by-field and
// returns only the fields that differ. Only fields that are non-nil
// in candidate are considered "specified"; unspecified fields are
// never compared and never appear in the delta. changed is false (and
// delta is the zero value) when every specified field already matches
// cached.
func DiffMetadata(cached, candidate Metadata) (delta Metadata, changed bool) {
	if candidate.Title != nil && (cached.Title == nil || *cached.Title != *candidate.Title) {
		delta.Title = candidate.Title
		changed = true
	}
	if candidate.Artist != nil && (cached.Artist == nil || *cached.Artist != *candidate.Artist) {
		delta.Artist = candidate.Artist
		changed = true
	}
	if candidate.Album != nil && (cached.Album == nil || *cached.Album != *candidate.Album) {
		delta.Album = candidate.Album
		changed = true
	}
	if candidate.Year != nil && (cached.Year == nil || *cached.Year != *candidate.Year) {
		delta.Year = candidate.Year
		changed = true
	}
	if candidate.Track != nil && (cached.Track == nil || *cached.Track != *candidate.Track) {
		delta.Track = candidate.Track
		changed = true
	}
	if candidate.Repeat != nil && (cached.Repeat == nil || *cached.Repeat != *candidate.Repeat) {
		delta.Repeat = candidate.Repeat
		changed = true
	}
	if candidate.Shuffle != nil && (cached.Shuffle == nil || *cached.Shuffle != *candidate.Shuffle) {
		delta.Shuffle = candidate.Shuffle
		changed = true
	}
	if candidate.Progress != nil && (cached.Progress == nil || *cached.Progress != *candidate.Progress) {
		delta.Progress = candidate.Progress
		changed = true
	}
	if candidate.GroupMembers != nil && !stringSliceEqual(cached.GroupMembers, candidate.GroupMembers) {
		delta.GroupMembers = append([]string(nil), candidate.GroupMembers...)
		changed = true
	}
	if candidate.SupportCommands != nil && !stringSliceEqual(cached.SupportCommands, candidate.SupportCommands) {
		delta.SupportCommands = append([]string(nil), candidate.SupportCommands...)
		changed = true
	}
	return delta, changed
}

// MergeMetadata applies every non-nil field of delta onto a clone of
// cached and returns the result. An empty cached (the zero value)
// means the merge is a full replace, matching the receiver's
// "empty cache => full replace" rule.
func MergeMetadata(cached, delta Metadata) Metadata {
	out := cached.Clone()
	if delta.Title != nil {
		out.Title = delta.Title
	}
	if delta.Artist != nil {
		out.Artist = delta.Artist
	}
	if delta.Album != nil {
		out.Album = delta.Album
	}
	if delta.Year != nil {
		out.Year = delta.Year
	}
	if delta.Track != nil {
		out.Track = delta.Track
	}
	if delta.Repeat != nil {
		out.Repeat = delta.Repeat
	}
	if delta.Shuffle != nil {
		out.Shuffle = delta.Shuffle
	}
	if delta.Progress != nil {
		out.Progress = delta.Progress
	}
	if delta.GroupMembers != nil {
		out.GroupMembers = append([]string(nil), delta.GroupMembers...)
	}
	if delta.SupportCommands != nil {
		out.SupportCommands = append([]string(nil), delta.SupportCommands...)
	}
	return out.Clone()
}
