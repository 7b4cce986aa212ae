package relay

// SubscriptionRegistry maps each symbol to the set of client IDs currently
// interested in it. A symbol is present iff at least one client holds
// interest, so membership doubles as the upstream-subscription reference
// count. Not safe for concurrent use; the Relay serializes access.
type SubscriptionRegistry struct {
	subscribers map[string]map[string]bool // symbol -> set of client IDs
}

func NewSubscriptionRegistry() *SubscriptionRegistry {
	return &SubscriptionRegistry{
		subscribers: make(map[string]map[string]bool),
	}
}

// AddInterest registers clientID against symbol. Returns true when this was
// the symbol's first subscriber, i.e. the upstream feed must be subscribed.
func (r *SubscriptionRegistry) AddInterest(clientID, symbol string) bool {
	set, ok := r.subscribers[symbol]
	if !ok {
		r.subscribers[symbol] = map[string]bool{clientID: true}
		return true
	}
	set[clientID] = true
	return false
}

// RemoveInterest drops clientID from symbol. Returns true when the symbol's
// subscriber set became empty, i.e. the upstream feed must be unsubscribed.
// Removing unknown interest is a no-op.
func (r *SubscriptionRegistry) RemoveInterest(clientID, symbol string) bool {
	set, ok := r.subscribers[symbol]
	if !ok || !set[clientID] {
		return false
	}
	delete(set, clientID)
	if len(set) == 0 {
		delete(r.subscribers, symbol)
		return true
	}
	return false
}

// InterestedClients returns a snapshot of the client IDs subscribed to
// symbol. The copy keeps fan-out iteration safe from concurrent mutation.
func (r *SubscriptionRegistry) InterestedClients(symbol string) []string {
	set, ok := r.subscribers[symbol]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	return ids
}

// ActiveSymbols returns every symbol with a non-zero subscriber count.
func (r *SubscriptionRegistry) ActiveSymbols() []string {
	symbols := make([]string, 0, len(r.subscribers))
	for sym := range r.subscribers {
		symbols = append(symbols, sym)
	}
	return symbols
}

// SubscriberCount reports the reference count for a symbol.
func (r *SubscriptionRegistry) SubscriberCount(symbol string) int {
	return len(r.subscribers[symbol])
}
