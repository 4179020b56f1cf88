package router

import "eduhub/pkg/types"

// CanMessage applies the direct-message permission matrix. The first
// matching rule wins:
//
//  1. staff may message anyone
//  2. anyone may message a teacher or staff
//  3. teachers may message anyone
//  4. freelancers may message teachers and staff (covered by 2)
//  5. students may message freelancers
//  6. teachers may message freelancers (covered by 3)
//  7. students may message students they are friends with
//  8. everything else is denied
//
// friends is only consulted by rule 7.
func CanMessage(sender, receiver types.Role, friends bool) bool {
	switch {
	case sender.IsStaff():
		return true
	case receiver.IsPublic():
		return true
	case sender == types.RoleTeacher:
		return true
	case receiver == types.RoleFreelancer && sender.IsOrdinary():
		return true
	case sender.IsOrdinary() && receiver.IsOrdinary():
		return friends
	default:
		return false
	}
}

// NeedsFriendship reports whether CanMessage depends on the friendship
// relation for this pair, so callers can skip the store lookup otherwise.
func NeedsFriendship(sender, receiver types.Role) bool {
	return sender.IsOrdinary() && receiver.IsOrdinary()
}

// CanBroadcast reports whether role may send announcements to an audience.
func CanBroadcast(role types.Role) bool {
	return role == types.RoleTeacher || role.IsStaff()
}
