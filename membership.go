package cluster

// AddMember activates member id, (re)initializing its record: a derived
// key, an empty outbound queue, and zeroed location/load/endpoints. A
// second call for an already-active id is a no-op on the active-ID set but
// still re-derives and re-primes the record, matching add_member's "ignore
// if already present [in the ID list]" coupled with an unconditional record
// reset in spec.md §4.8.
func (c *Cluster) AddMember(id MemberID) error {
	if id == c.cfg.SelfID {
		return ErrIsSelf
	}
	if int(id) >= c.cfg.MaxMembers {
		return ErrMemberOutOfRange
	}

	key := deriveMemberKey(c.cfg.MasterSecret, id)
	m := c.table.slot(id)
	m.mu.Lock()
	m.resetLocked(key, c.cfg.SelfID, id, c.cfg.MaxFrameLength)
	m.mu.Unlock()

	c.table.add(id)
	c.emit(eventMemberAdded, id)
	return nil
}

// RemoveMember deactivates member id. Its record is left in place as
// dormant state; the next AddMember call reinitializes it.
func (c *Cluster) RemoveMember(id MemberID) error {
	if int(id) >= c.cfg.MaxMembers {
		return ErrMemberOutOfRange
	}
	if c.table.remove(id) {
		c.emit(eventMemberRemoved, id)
	}
	return nil
}
