package search

// Wiring note: a State implementation embeds a *Schedule[E] for its
// virtual timers and a *Network[A, M] (or several, one per message
// type) for its virtual outbound messages, then folds their Events()
// into its own Events() return. Apply copies the receiver, applies the
// event's effect to the copy's embedded Schedule/Network (via their
// Clone methods) and any other fields, and returns the copy — never
// mutating the receiver itself, since BreadthFirst keeps many branches
// of the same ancestor alive concurrently.
