package chat

// PairID derives the canonical conversation identifier for a pair of users.
// It is commutative: PairID(a, b) == PairID(b, a). The two ids are joined in
// lexicographic order with an underscore. User ids come from the auth
// provider's subject namespace, which never contains an underscore, so the
// join is unambiguous.
func PairID(userA, userB string) string {
	if userA <= userB {
		return userA + "_" + userB
	}
	return userB + "_" + userA
}
