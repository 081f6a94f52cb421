// Package pending holds the in-memory mutation queues that sit between the
// live channel state and the durable backing store. Callers submit mutation
// intents which are coalesced per key; the commit cycle drains whole queues
// as snapshots.
package pending

// Key is the composite key a pending operation is indexed under: a channel
// paired with either a user (member and ban operations) or an attribute name
// (attribute operations). It is a comparable value type so it can be used
// directly as a map key.
type Key struct {
	Channel int64
	User    int64
	Attr    string
}

// MemberKey builds the key for a member or ban operation.
func MemberKey(channelID, userID int64) Key {
	return Key{Channel: channelID, User: userID}
}

// AttrKey builds the key for an attribute operation.
func AttrKey(channelID int64, attr string) Key {
	return Key{Channel: channelID, Attr: attr}
}
