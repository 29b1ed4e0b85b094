package inbox

import "strathyterm/internal/model"

// Reselect resolves the active thread after the store changed. It returns the
// current record for currentID when that thread is still present, otherwise
// the first thread in store order. ok is false only for an empty store.
func Reselect(threads []model.Thread, currentID string) (model.Thread, bool) {
	if len(threads) == 0 {
		return model.Thread{}, false
	}
	if currentID != "" {
		for _, t := range threads {
			if t.ID == currentID {
				return t, true
			}
		}
	}
	return threads[0], true
}

// SetStatus returns a copy of threads with the status of thread id replaced.
// User actions set a status directly, bypassing merge precedence.
func SetStatus(threads []model.Thread, id string, status model.Status) []model.Thread {
	out := make([]model.Thread, len(threads))
	copy(out, threads)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status
		}
	}
	return out
}
