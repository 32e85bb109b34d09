package server

// waitingQueue holds ids looking for a partner, oldest first. It holds no duplicates.
type waitingQueue struct {
	ids []string
}

func (q *waitingQueue) contains(id string) bool {
	return q.indexOf(id) != -1
}

func (q *waitingQueue) indexOf(id string) int {
	for i, queued := range q.ids {
		if queued == id {
			return i
		}
	}
	return -1
}

// enqueue appends id unless it is already queued, reporting whether it was added
func (q *waitingQueue) enqueue(id string) bool {
	if q.contains(id) {
		return false
	}
	q.ids = append(q.ids, id)
	return true
}

// dequeue removes id wherever it sits, reporting whether it was present
func (q *waitingQueue) dequeue(id string) bool {
	i := q.indexOf(id)
	if i == -1 {
		return false
	}
	q.ids = append(q.ids[:i], q.ids[i+1:]...)
	return true
}

// popFront removes and returns the oldest id
func (q *waitingQueue) popFront() (string, bool) {
	if len(q.ids) == 0 {
		return "", false
	}
	id := q.ids[0]
	q.ids[0] = ""
	q.ids = q.ids[1:]
	return id, true
}

func (q *waitingQueue) len() int {
	return len(q.ids)
}

func (q *waitingQueue) snapshot() []string {
	out := make([]string, len(q.ids))
	copy(out, q.ids)
	return out
}
