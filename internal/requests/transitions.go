package requests

// Op names an operator action on a request.
type Op string

const (
	OpApprove Op = "approve"
	OpReject  Op = "reject"
	OpPlay    Op = "play"
	OpDemote  Op = "demote"
	OpDone    Op = "done"
	OpEdit    Op = "edit"
	OpRemove  Op = "remove"
)

type rule struct {
	from []Status
	to   Status
}

// Statuses that are unchanged by an op keep to == "".
var rules = map[Op]rule{
	OpApprove: {from: []Status{StatusPending}, to: StatusQueued},
	OpReject:  {from: []Status{StatusPending, StatusQueued}, to: StatusRejected},
	OpPlay:    {from: []Status{StatusQueued}, to: StatusPlaying},
	OpDemote:  {from: []Status{StatusPlaying}, to: StatusCompleted},
	OpDone:    {from: []Status{StatusPlaying}, to: StatusCompleted},
	OpEdit:    {from: []Status{StatusPending, StatusQueued}},
	OpRemove:  {from: []Status{StatusPending, StatusQueued, StatusPlaying}},
}

// AllowedFrom returns the statuses an op may start from.
func AllowedFrom(op Op) []Status {
	r, ok := rules[op]
	if !ok {
		return nil
	}
	cp := make([]Status, len(r.from))
	copy(cp, r.from)
	return cp
}

// Target returns the status an op moves to. ok is false for ops that leave
// status untouched or delete the request.
func Target(op Op) (Status, bool) {
	r, ok := rules[op]
	if !ok || r.to == "" {
		return "", false
	}
	return r.to, true
}

// CanApply reports whether op is legal for a request in status.
func CanApply(op Op, status Status) bool {
	r, ok := rules[op]
	if !ok {
		return false
	}
	for _, s := range r.from {
		if s == status {
			return true
		}
	}
	return false
}
