package domain

// flowArrays returns pointers to the six flow arrays in lifecycle order.
func (p *Proposal) flowArrays() []*[]string {
	return []*[]string{
		&p.OpenDizChecks,
		&p.DizApprovedLocations,
		&p.OpenDizConditionChecks,
		&p.UacApprovedLocations,
		&p.RequestedButExcludedLocations,
		&p.SignedLocations,
	}
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func remove(list []string, v string) []string {
	out := list[:0]
	for _, x := range list {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}

// ClearLocationFromFlow removes the location from every flow array. Vote
// operations call it before re-placing a location so repeating a vote cannot
// duplicate a location across arrays.
func (p *Proposal) ClearLocationFromFlow(location string) {
	for _, arr := range p.flowArrays() {
		*arr = remove(*arr, location)
	}
}

// FlowArrayCount reports how many of the six flow arrays hold the location.
// It is at most 1 for a consistent aggregate.
func (p *Proposal) FlowArrayCount(location string) int {
	n := 0
	for _, arr := range p.flowArrays() {
		if contains(*arr, location) {
			n++
		}
	}
	return n
}

func (p *Proposal) IsRequested(location string) bool {
	return contains(p.RequestedLocations, location)
}

// LocationStateOf derives the per-location sub-state from the flow arrays and
// the persistent records.
func (p *Proposal) LocationStateOf(location string) LocationState {
	switch {
	case contains(p.SignedLocations, location):
		if p.Status != StatusContracting {
			return LocationSignedContractingDone
		}
		return LocationSignedContract
	case contains(p.RequestedButExcludedLocations, location):
		return LocationExcluded
	case contains(p.OpenDizConditionChecks, location):
		return LocationDizConditionCheck
	case contains(p.UacApprovedLocations, location):
		if ca := p.ConditionalApprovalByLocation(location); ca != nil && ca.ReviewedAt != nil && ca.IsAccepted {
			return LocationConditionalApprovalAccepted
		}
		return LocationUacApproved
	case contains(p.DizApprovedLocations, location):
		return LocationDizApproved
	case contains(p.OpenDizChecks, location):
		return LocationIsDizCheck
	}
	return LocationNotRequested
}

func (p *Proposal) UacApprovalByLocation(location string) *UacApproval {
	for i := range p.UacApprovals {
		if p.UacApprovals[i].Location == location {
			return &p.UacApprovals[i]
		}
	}
	return nil
}

func (p *Proposal) ConditionalApprovalByID(id string) *ConditionalApproval {
	for i := range p.ConditionalApprovals {
		if p.ConditionalApprovals[i].ID == id {
			return &p.ConditionalApprovals[i]
		}
	}
	return nil
}

func (p *Proposal) ConditionalApprovalByLocation(location string) *ConditionalApproval {
	for i := range p.ConditionalApprovals {
		if p.ConditionalApprovals[i].Location == location {
			return &p.ConditionalApprovals[i]
		}
	}
	return nil
}

func (p *Proposal) DeclineReasonsByLocation(location string) []DeclineReason {
	var out []DeclineReason
	for _, r := range p.DeclineReasons {
		if r.Location == location {
			out = append(out, r)
		}
	}
	return out
}

// PromisedDataAmount recomputes the sum over unconditional approvals plus
// accepted-and-reviewed conditional approvals.
func (p *Proposal) PromisedDataAmount() int {
	total := 0
	for _, a := range p.UacApprovals {
		total += a.DataAmount
	}
	for _, ca := range p.ConditionalApprovals {
		if ca.ReviewedAt != nil && ca.IsAccepted {
			total += ca.DataAmount
		}
	}
	return total
}

// ContractedLocations resolves the per-location data amounts for contract-skip
// economics. It falls back from the unconditional approvals to the conditional
// ones when the former are empty, which is not the lookup order the normal
// per-location sign path uses; the two paths are intentionally kept separate.
func (p *Proposal) ContractedLocations() map[string]int {
	out := map[string]int{}
	if len(p.UacApprovals) > 0 {
		for _, a := range p.UacApprovals {
			out[a.Location] = a.DataAmount
		}
		return out
	}
	for _, ca := range p.ConditionalApprovals {
		if ca.ReviewedAt != nil && ca.IsAccepted {
			out[ca.Location] = ca.DataAmount
		}
	}
	return out
}

// OpenTaskByKind returns the first open task of the kind, or nil.
func (p *Proposal) OpenTaskByKind(kind TaskKind) *Task {
	for i := range p.OpenTasks {
		if p.OpenTasks[i].Kind == kind {
			return &p.OpenTasks[i]
		}
	}
	return nil
}
