package ledger

import (
	"fmt"

	"printbroker/internal/domain"
)

type op string

const (
	opAccept      op = "accept"
	opDecline     op = "decline"
	opMarkPrinted op = "mark printed"
	opEdit        op = "edit"
)

type state struct {
	status domain.Status
	action domain.Action
}

func (s state) String() string {
	if s.status == domain.StatusResponded {
		return fmt.Sprintf("%s(%s)", s.status, s.action)
	}
	return string(s.status)
}

// transitions lists every allowed (state, op) pair and where it leads.
// Responded(Declined) has no entry and is therefore terminal.
// Printed --mark printed--> Printed makes MarkPrinted idempotent.
var transitions = map[state]map[op]state{
	{domain.StatusPending, domain.ActionPending}: {
		opAccept:  {domain.StatusResponded, domain.ActionAccepted},
		opDecline: {domain.StatusResponded, domain.ActionDeclined},
		opEdit:    {domain.StatusPending, domain.ActionPending},
	},
	{domain.StatusResponded, domain.ActionAccepted}: {
		opMarkPrinted: {domain.StatusPrinted, domain.ActionAccepted},
	},
	{domain.StatusPrinted, domain.ActionAccepted}: {
		opMarkPrinted: {domain.StatusPrinted, domain.ActionAccepted},
	},
}

func stateOf(r domain.PrintRequest) state {
	return state{status: r.Status, action: r.Action}
}

// next returns the state r moves to under o, or ErrConflict.
func next(r domain.PrintRequest, o op) (state, error) {
	from := stateOf(r)
	if to, ok := transitions[from][o]; ok {
		return to, nil
	}
	return state{}, fmt.Errorf("%w: cannot %s request %d in state %s", domain.ErrConflict, o, r.ID, from)
}
