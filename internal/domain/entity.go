package domain

import "errors"

// Entity carries the persisted identity shared by Account and Transaction.
// A zero id means the entity has not been persisted yet.
type Entity struct {
	id int64
}

func (e Entity) ID() int64 {
	return e.id
}

// IsTransient reports whether no identity has been assigned yet
func (e Entity) IsTransient() bool {
	return e.id == 0
}

// AssignID sets the identity. Only the persistence boundary calls it, and only once.
func (e *Entity) AssignID(id int64) error {
	if id <= 0 {
		return errors.New("identity must be positive")
	}
	if e.id != 0 {
		return errors.New("identity already assigned")
	}
	e.id = id
	return nil
}

// sameIdentity is the comparison rule for every aggregate: both persisted and equal ids.
func (e Entity) sameIdentity(other Entity) bool {
	if e.IsTransient() || other.IsTransient() {
		return false
	}
	return e.id == other.id
}
