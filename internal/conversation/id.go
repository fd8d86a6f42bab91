package conversation

import "github.com/google/uuid"

// UUIDGenerator issues random (v4) UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) NewID() string { return uuid.NewString() }

// FixedIDs hands out the given ids in order and then repeats the last one.
type FixedIDs struct {
	IDs  []string
	next int
}

func (f *FixedIDs) NewID() string {
	if len(f.IDs) == 0 {
		return ""
	}
	if f.next >= len(f.IDs) {
		return f.IDs[len(f.IDs)-1]
	}
	id := f.IDs[f.next]
	f.next++
	return id
}
