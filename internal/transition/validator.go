// Package transition decides whether a global status change is legal for the
// acting principal. The table is proposal-domain data, not a generic rules
// engine: absent entries are a deterministic deny.
package transition

import (
	"github.com/medizininformatik-initiative/fdpg-api-sub000/internal/domain"
)

// Predicate decides one (current, target) pair for an actor. forceThrow
// mirrors the caller's intent: the deferred contracting hand-over passes only
// while the caller is merely probing feasibility (forceThrow == false); the
// committing path goes through the engine's InitContracting instead.
type Predicate func(p *domain.Proposal, actor domain.Actor, forceThrow bool) bool

func isOwner(p *domain.Proposal, actor domain.Actor, _ bool) bool {
	return actor.Role == domain.RoleResearcher && actor.ID == p.OwnerID
}

func isFdpgMember(_ *domain.Proposal, actor domain.Actor, _ bool) bool {
	return actor.Role == domain.RoleFdpgMember
}

func ownerOrFdpg(p *domain.Proposal, actor domain.Actor, forceThrow bool) bool {
	return isOwner(p, actor, forceThrow) || isFdpgMember(p, actor, forceThrow)
}

func probeOnly(_ *domain.Proposal, _ domain.Actor, forceThrow bool) bool {
	return !forceThrow
}

var table = map[domain.Status]map[domain.Status]Predicate{
	domain.StatusDraft: {
		domain.StatusFdpgCheck: isOwner,
		domain.StatusArchived:  isOwner,
	},
	domain.StatusRework: {
		domain.StatusFdpgCheck: isOwner,
	},
	domain.StatusFdpgCheck: {
		domain.StatusRework:        isFdpgMember,
		domain.StatusRejected:      isFdpgMember,
		domain.StatusLocationCheck: isFdpgMember,
	},
	domain.StatusLocationCheck: {
		domain.StatusRejected:    isFdpgMember,
		domain.StatusContracting: probeOnly,
	},
	domain.StatusContracting: {
		domain.StatusExpectDataDelivery: isFdpgMember,
		domain.StatusRejected:           isFdpgMember,
	},
	domain.StatusExpectDataDelivery: {
		domain.StatusDataResearch: isFdpgMember,
	},
	domain.StatusDataResearch: {
		domain.StatusDataCorrupt:     isFdpgMember,
		domain.StatusFinishedProject: isFdpgMember,
	},
	domain.StatusDataCorrupt: {
		domain.StatusFinishedProject: isFdpgMember,
	},
	domain.StatusFinishedProject: {
		domain.StatusReadyToArchive: ownerOrFdpg,
	},
	domain.StatusReadyToArchive: {
		domain.StatusArchived: isFdpgMember,
	},
}

// Validate checks the transition from the proposal's current status to the
// target for the actor. The failure is always surfaced, never downgraded.
func Validate(p *domain.Proposal, target domain.Status, actor domain.Actor, forceThrow bool) error {
	targets, ok := table[p.Status]
	if !ok {
		return domain.NewTransitionError(p.Status, target)
	}
	pred, ok := targets[target]
	if !ok || !pred(p, actor, forceThrow) {
		return domain.NewTransitionError(p.Status, target)
	}
	return nil
}

// Targets lists the configured target statuses for a current status; used for
// table checks and CLI hints.
func Targets(current domain.Status) []domain.Status {
	var out []domain.Status
	for _, s := range domain.AllStatuses {
		if _, ok := table[current][s]; ok {
			out = append(out, s)
		}
	}
	return out
}
