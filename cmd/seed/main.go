// Command seed loads a set of sample character cards into the store so a
// local server has something to select and fight with.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"gameroom-lab/domain"
	"gameroom-lab/repositories"
)

func main() {
	dbPath := flag.String("db", "/tmp/gameroom/badger", "Path to badger DB")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	store := repositories.NewCharacterStore(db, logger)

	for _, card := range sampleCards() {
		if err := store.Put(card); err != nil {
			log.Fatalf("Seeding %s failed: %v", card.Name, err)
		}
		fmt.Printf("Seeded %-12s %-8s id=%s\n", card.Name, card.Type, card.ID)
	}
}

func sampleCards() []domain.CharacterCard {
	alvaOwner := uuid.NewString()
	torinOwner := uuid.NewString()

	return []domain.CharacterCard{
		card("Alva", domain.TypeHero, alvaOwner, "Human", "Hunter", 4, 3),
		card("Torin", domain.TypeHero, torinOwner, "Dwarf", "Fighter", 3, 2),
		card("Old Vesna", domain.TypeNPC, "", "Human", "Herbalist", 2, 1),
		card("Marsh Guide", domain.TypeNPC, "", "Elf", "Wanderer", 3, 2),
		card("Bog Fiend", domain.TypeMonster, "", "", "", 5, 1),
		card("Grave Wolf", domain.TypeMonster, "", "", "", 4, 3),
	}
}

func card(name string, kind domain.CharacterType, owner, race, archetype string, agility, move int) domain.CharacterCard {
	return domain.CharacterCard{
		ID:        uuid.NewString(),
		Name:      name,
		Avatar:    fmt.Sprintf("https://cards.example/avatars/%s.png", name),
		Race:      race,
		Archetype: archetype,
		Type:      kind,
		OwnerID:   owner,
		Attribute: domain.Attributes{
			Strength: domain.Attribute{DisplayName: "Strength", Value: 3},
			Agility:  domain.Attribute{DisplayName: "Agility", Value: agility},
			Wits:     domain.Attribute{DisplayName: "Wits", Value: 3},
			Empathy:  domain.Attribute{DisplayName: "Empathy", Value: 2},
		},
		Skills: map[string]domain.Skill{
			"Move":  {DisplayName: "Move", Value: move, LinkedAttribute: "Agility"},
			"Melee": {DisplayName: "Melee", Value: 2, LinkedAttribute: "Strength"},
		},
	}
}
