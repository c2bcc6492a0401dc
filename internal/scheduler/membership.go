package scheduler

import "github.com/noah-isme/uni-timetable-api/internal/models"

// Membership maps each class to its enrolled students.
type Membership map[string]map[string]struct{}

// NewMembership indexes class members.
func NewMembership(members []models.ClassMember) Membership {
	m := make(Membership)
	for _, cm := range members {
		students, ok := m[cm.ClassID]
		if !ok {
			students = make(map[string]struct{})
			m[cm.ClassID] = students
		}
		students[cm.StudentID] = struct{}{}
	}
	return m
}

// Overlap returns the first class in a that shares a student (or is itself) with a class in b.
// The second result is the smallest shared student id, empty when the classes are the same.
func (m Membership) Overlap(a, b []string) (classID, studentID string, ok bool) {
	for _, ca := range a {
		for _, cb := range b {
			if ca == cb {
				return ca, "", true
			}
		}
	}
	for _, ca := range a {
		sa := m[ca]
		if len(sa) == 0 {
			continue
		}
		for _, cb := range b {
			sb := m[cb]
			small, large := sa, sb
			if len(sb) < len(sa) {
				small, large = sb, sa
			}
			shared := ""
			for student := range small {
				if _, hit := large[student]; hit && (shared == "" || student < shared) {
					shared = student
				}
			}
			if shared != "" {
				return ca, shared, true
			}
		}
	}
	return "", "", false
}
