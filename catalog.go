/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

type GameType struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	PartyMode   bool   `json:"party_mode"`
}

var gameTypes = []GameType{
	{
		ID:          "penalty_shootout",
		Name:        "Penalty Shootout Quiz",
		Description: "Multiple choice questions. Score goals with correct answers!",
		Icon:        "⚽",
	},
	{
		ID:          "quickfire_duel",
		Name:        "Quickfire Duel",
		Description: "Type your answer fast. First correct wins double points!",
		Icon:        "⚡",
	},
	{
		ID:          "who_am_i",
		Name:        "Who Am I?",
		Description: "One player gives clues, others guess the footballer!",
		Icon:        "🎭",
		PartyMode:   true,
	},
	{
		ID:          "career_path",
		Name:        "Career Path Challenge",
		Description: "Clues revealed one by one. Buzz in to guess the player!",
		Icon:        "🛤️",
	},
	{
		ID:          "last_man_standing",
		Name:        "Last Man Standing",
		Description: "Take turns naming answers. Last player standing wins!",
		Icon:        "🏆",
	},
	{
		ID:          "higher_or_lower",
		Name:        "Higher or Lower",
		Description: "Compare stats. Is it higher or lower?",
		Icon:        "📊",
	},
	{
		ID:          "you_are_the_ref",
		Name:        "You Are The Ref",
		Description: "Make the right call on tricky scenarios!",
		Icon:        "🟨",
	},
	{
		ID:          "football_word_game",
		Name:        "Football Word Game",
		Description: "Wordle-style. Guess the footballer in 5 tries!",
		Icon:        "🔤",
		PartyMode:   true,
	},
}

func lookupGameType(id string) (GameType, bool) {
	for _, g := range gameTypes {
		if g.ID == id {
			return g, true
		}
	}

	return GameType{}, false
}
