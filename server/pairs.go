package server

// pairTable maps every paired id to its partner. Entries always exist in both directions.
type pairTable map[string]string

func (p pairTable) pair(a, b string) {
	p[a] = b
	p[b] = a
}

func (p pairTable) partnerOf(id string) (string, bool) {
	partner, ok := p[id]
	return partner, ok
}

// unpair removes both directions of the entry involving id and returns the former partner.
// Calling it for an id with no entry is a no-op.
func (p pairTable) unpair(id string) (string, bool) {
	partner, ok := p[id]
	if !ok {
		return "", false
	}
	delete(p, id)
	if p[partner] == id {
		delete(p, partner)
	}
	return partner, true
}
