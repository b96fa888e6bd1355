package domain

// Weapon describes the weapon used in a declared attack, relayed verbatim
// to the room for table-side damage resolution.
type Weapon struct {
	Name       string `json:"name"`
	Damage     int    `json:"damage"`
	DamageType string `json:"damageType"` // blunt, slash, pierce
	Hand       string `json:"hand"`       // main, off, two-handed
}

// Die is one rolled die in a detailed pool.
type Die struct {
	Size  int `json:"size"`
	Value int `json:"value"`
}

// DicePool groups the dice of a detailed test by origin.
type DicePool struct {
	Attribute []Die `json:"attribute"`
	Skill     []Die `json:"skill"`
	Weapon    []Die `json:"weapon"`
}

// DetailedDiceRoll is the full breakdown of a skill test, relayed to the
// room as-is. The coordinator does not re-verify the math.
type DetailedDiceRoll struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Hero     struct {
		ID        string `json:"id"`
		Name      string `json:"name"`
		Avatar    string `json:"avatar"`
		Race      string `json:"race"`
		Archetype string `json:"archetype"`
	} `json:"hero"`
	TestType       string   `json:"testType"`
	Pool           DicePool `json:"dicePool"`
	Push           bool     `json:"push"`
	TotalSuccesses int      `json:"totalSuccesses"`
	Failures       int      `json:"failures"`
	Timestamp      string   `json:"timestamp"`
	EncounterID    string   `json:"eventId"`
	Scene          int      `json:"turn"`
	Round          int      `json:"round"`
}

// CharacterTransfer is the informational relay sent when a character
// changes owner outside the room flow.
type CharacterTransfer struct {
	FromUser struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"fromUser"`
	ToUser struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Email string `json:"email"`
	} `json:"toUser"`
	Character struct {
		Name string `json:"name"`
	} `json:"character"`
}
