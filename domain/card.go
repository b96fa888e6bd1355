package domain

// CardCategory partitions selection pools inside a room.
type CardCategory string

const (
	CategoryHero    CardCategory = "Hero"
	CategoryNPC     CardCategory = "NPC"
	CategoryMonster CardCategory = "Monster"
)

// CharacterType mirrors CardCategory on the character sheet itself.
type CharacterType string

const (
	TypeHero    CharacterType = "Hero"
	TypeNPC     CharacterType = "NPC"
	TypeMonster CharacterType = "Monster"
)

// Attribute is a single base attribute value.
type Attribute struct {
	DisplayName string `json:"displayName"`
	Value       int    `json:"value"`
}

// Attributes holds the four base attributes of a character.
type Attributes struct {
	Strength Attribute `json:"Strength"`
	Agility  Attribute `json:"Agility"`
	Wits     Attribute `json:"Wits"`
	Empathy  Attribute `json:"Empathy"`
}

// Skill is a trained skill linked to one of the base attributes.
type Skill struct {
	DisplayName     string `json:"displayName"`
	Value           int    `json:"value"`
	LinkedAttribute string `json:"linkedAttribute"`
}

// CharacterCard is the display summary of a character as shown on the
// table: identity, looks, and the stats the encounter engine needs for
// turn-order resolution. It is read from the character store and never
// mutated by the coordinator.
type CharacterCard struct {
	ID        string           `json:"_id"`
	Name      string           `json:"name"`
	Avatar    string           `json:"avatar"`
	Race      string           `json:"race"`
	Archetype string           `json:"archetype"`
	Species   string           `json:"species"`
	Type      CharacterType    `json:"characterType"`
	Age       string           `json:"age"`
	Attribute Attributes       `json:"attributes"`
	Skills    map[string]Skill `json:"skills"`
	OwnerID   string           `json:"owner"`
}

// MoveValue returns the Move skill value, zero when untrained.
func (c CharacterCard) MoveValue() int {
	return c.Skills["Move"].Value
}

// AgilityValue returns the Agility attribute value.
func (c CharacterCard) AgilityValue() int {
	return c.Attribute.Agility.Value
}

// typePriority orders character types for initiative tie-breaks:
// heroes act before NPCs, NPCs before monsters.
func typePriority(t CharacterType) int {
	switch t {
	case TypeHero:
		return 1
	case TypeNPC:
		return 2
	case TypeMonster:
		return 3
	default:
		return 2
	}
}
