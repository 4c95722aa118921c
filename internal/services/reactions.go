// Package services - reactions.go derives current reaction state from the append-only
// reaction log and attaches cross-platform identities to the reacting users.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/msgcore/msgcore-sub001/internal/db/models"
	"github.com/msgcore/msgcore-sub001/internal/db/repositories"
	"github.com/msgcore/msgcore-sub001/internal/telemetry"
)

// ReactionEventStore fetches the reaction log for a page of messages
type ReactionEventStore interface {
	ListForMessages(ctx context.Context, projectID string, keys []repositories.MessageKey) ([]models.ReactionEvent, error)
}

// AliasStore resolves platform users to identities in one batched query
type AliasStore interface {
	FindByPlatformUsers(ctx context.Context, projectID string, keys []repositories.PlatformUserKey) ([]models.ResolvedAlias, error)
}

// ResolvedIdentity is the identity attached to a reacting user
type ResolvedIdentity struct {
	ID          string  `json:"id"`
	DisplayName *string `json:"displayName"`
	Email       *string `json:"email"`
}

// ReactionUser is one user currently reacting with an emoji
type ReactionUser struct {
	ID       string            `json:"id"`
	Name     string            `json:"name"`
	Identity *ResolvedIdentity `json:"identity"`
}

// EmojiReactions lists the users currently reacting with one emoji
type EmojiReactions struct {
	Emoji string
	Users []ReactionUser
}

// Reactions is the current reaction state of one message, in discovery order.
// It encodes as a JSON object keyed by emoji; no reactions encode as {}.
type Reactions []EmojiReactions

// MarshalJSON writes the emoji groups as an ordered object
func (r Reactions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, group := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(group.Emoji)
		if err != nil {
			return nil, err
		}
		users := group.Users
		if users == nil {
			users = []ReactionUser{}
		}
		val, err := json.Marshal(users)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Users returns the users reacting with emoji, or nil
func (r Reactions) Users(emoji string) []ReactionUser {
	for _, g := range r {
		if g.Emoji == emoji {
			return g.Users
		}
	}
	return nil
}

type reactionKey struct {
	platformID        string
	providerMessageID string
	providerUserID    string
	emoji             string
}

// ReduceReactionEvents collapses a reaction log into the reactions that are currently active.
// events must be ordered newest first. The first event seen for each (message, user, emoji)
// wins; older events for the same triple are dropped, and triples whose latest event is a
// removal are excluded. The result keeps discovery order.
func ReduceReactionEvents(events []models.ReactionEvent) []models.ReactionEvent {
	seen := make(map[reactionKey]struct{}, len(events))
	active := make([]models.ReactionEvent, 0, len(events))
	for _, ev := range events {
		k := reactionKey{
			platformID:        ev.PlatformID,
			providerMessageID: ev.ProviderMessageID,
			providerUserID:    ev.ProviderUserID,
			emoji:             ev.Emoji,
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		if ev.ReactionType == models.ReactionAdded {
			active = append(active, ev)
		}
	}
	return active
}

// GroupReactions groups active events by message and emoji. identities maps platform users
// to their resolved identity; users without an entry get a nil identity.
func GroupReactions(active []models.ReactionEvent, identities map[repositories.PlatformUserKey]*ResolvedIdentity) map[repositories.MessageKey]Reactions {
	out := make(map[repositories.MessageKey]Reactions)
	for _, ev := range active {
		mk := repositories.MessageKey{PlatformID: ev.PlatformID, ProviderMessageID: ev.ProviderMessageID}

		name := ev.ProviderUserID
		if ev.UserDisplay != nil {
			name = *ev.UserDisplay
		}
		user := ReactionUser{
			ID:       ev.ProviderUserID,
			Name:     name,
			Identity: identities[repositories.PlatformUserKey{PlatformID: ev.PlatformID, ProviderUserID: ev.ProviderUserID}],
		}

		groups := out[mk]
		idx := -1
		for i := range groups {
			if groups[i].Emoji == ev.Emoji {
				idx = i
				break
			}
		}
		if idx < 0 {
			groups = append(groups, EmojiReactions{Emoji: ev.Emoji})
			idx = len(groups) - 1
		}
		groups[idx].Users = append(groups[idx].Users, user)
		out[mk] = groups
	}
	return out
}

// ReactionResolver computes current reactions for a page of messages
type ReactionResolver struct {
	events  ReactionEventStore
	aliases AliasStore
}

// NewReactionResolver creates a new reaction resolver
func NewReactionResolver(events ReactionEventStore, aliases AliasStore) *ReactionResolver {
	return &ReactionResolver{events: events, aliases: aliases}
}

// Resolve returns the reaction state of every message in messages. Every message gets an
// entry, empty when it has no active reactions. It issues at most two queries regardless
// of page size: one for the reaction log and one for identity aliases.
func (r *ReactionResolver) Resolve(ctx context.Context, projectID string, messages []models.ReceivedMessage) (map[repositories.MessageKey]Reactions, error) {
	result := make(map[repositories.MessageKey]Reactions, len(messages))
	if len(messages) == 0 {
		return result, nil
	}

	keys := make([]repositories.MessageKey, 0, len(messages))
	for _, m := range messages {
		mk := repositories.MessageKey{PlatformID: m.PlatformID, ProviderMessageID: m.ProviderMessageID}
		if _, ok := result[mk]; ok {
			continue
		}
		result[mk] = Reactions{}
		keys = append(keys, mk)
	}

	events, err := r.events.ListForMessages(ctx, projectID, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to load reactions: %w", err)
	}

	active := ReduceReactionEvents(events)

	identities, err := r.resolveIdentities(ctx, projectID, active)
	if err != nil {
		return nil, err
	}

	for mk, reactions := range GroupReactions(active, identities) {
		if _, ok := result[mk]; ok {
			result[mk] = reactions
		}
	}
	telemetry.ReactionsResolvedTotal.Inc()
	return result, nil
}

func (r *ReactionResolver) resolveIdentities(ctx context.Context, projectID string, active []models.ReactionEvent) (map[repositories.PlatformUserKey]*ResolvedIdentity, error) {
	identities := make(map[repositories.PlatformUserKey]*ResolvedIdentity)
	if len(active) == 0 {
		return identities, nil
	}

	seen := make(map[repositories.PlatformUserKey]struct{})
	users := make([]repositories.PlatformUserKey, 0)
	for _, ev := range active {
		k := repositories.PlatformUserKey{PlatformID: ev.PlatformID, ProviderUserID: ev.ProviderUserID}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		users = append(users, k)
	}

	aliases, err := r.aliases.FindByPlatformUsers(ctx, projectID, users)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve identities: %w", err)
	}

	for _, a := range aliases {
		// Aliases are unique per platform user, not per project; never attach another tenant's identity.
		if a.ProjectID != projectID {
			continue
		}
		identities[repositories.PlatformUserKey{PlatformID: a.PlatformID, ProviderUserID: a.ProviderUserID}] = &ResolvedIdentity{
			ID:          a.IdentityID,
			DisplayName: a.IdentityDisplayName,
			Email:       a.IdentityEmail,
		}
	}
	return identities, nil
}
