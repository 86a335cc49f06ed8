package rules

// Layout declares the board geometry and per-round resource schedule the
// resolution functions are parameterized on.
type Layout struct {
	BoardSlots      int
	UnitLimit       int
	HandLimit       int
	ShieldLimit     int
	StartingEnergy  int
	EnergyPerRound  int
	EnergyCap       int
	CardsPerDraw    int
	InitialHandSize int
}

func DefaultLayout() Layout {
	return Layout{
		BoardSlots:      7,
		UnitLimit:       5,
		HandLimit:       8,
		ShieldLimit:     5,
		StartingEnergy:  2,
		EnergyPerRound:  1,
		EnergyCap:       10,
		CardsPerDraw:    2,
		InitialHandSize: 5,
	}
}
