package chat

// ConversationID derives the two-party conversation address from the
// participants' identities: the ids sorted lexicographically and joined
// with an underscore. Commutative by construction, so both sides resolve
// to the same room no matter who initiates.
func ConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "_" + b
}
