package domain

// SelectionPools holds the per-room "active card" lists, partitioned by
// category and keyed by the submitting user. Each set replaces the user's
// previous list wholesale.
type SelectionPools struct {
	byCategory map[CardCategory]map[string][]CharacterCard
}

func NewSelectionPools() *SelectionPools {
	return &SelectionPools{
		byCategory: map[CardCategory]map[string][]CharacterCard{
			CategoryHero:    {},
			CategoryNPC:     {},
			CategoryMonster: {},
		},
	}
}

// Set replaces the user's list for one category.
func (s *SelectionPools) Set(category CardCategory, userID string, cards []CharacterCard) {
	pool, ok := s.byCategory[category]
	if !ok {
		return
	}
	pool[userID] = cards
}

// ClearHero drops the user's Hero entry ("unselect my active card").
// Reports whether anything was removed.
func (s *SelectionPools) ClearHero(userID string) bool {
	pool := s.byCategory[CategoryHero]
	if _, ok := pool[userID]; !ok {
		return false
	}
	delete(pool, userID)
	return true
}

// RemoveUser drops the user's entries across all categories, returning the
// categories that actually changed so only those get re-broadcast.
func (s *SelectionPools) RemoveUser(userID string) []CardCategory {
	var changed []CardCategory
	for _, category := range []CardCategory{CategoryHero, CategoryNPC, CategoryMonster} {
		pool := s.byCategory[category]
		if _, ok := pool[userID]; ok {
			delete(pool, userID)
			changed = append(changed, category)
		}
	}
	return changed
}

// Snapshot returns a copy of one category's user→cards map, safe to hand
// to other goroutines.
func (s *SelectionPools) Snapshot(category CardCategory) map[string][]CharacterCard {
	pool := s.byCategory[category]
	out := make(map[string][]CharacterCard, len(pool))
	for user, cards := range pool {
		copied := make([]CharacterCard, len(cards))
		copy(copied, cards)
		out[user] = copied
	}
	return out
}
