package roulette

import "github.com/keshon/gremlin/internal/mind"

// Title is a roulette title a winner receives for the day.
type Title struct {
	Code  string
	Label string
}

// CustomTitleCode is stored for winners of a chat's custom title.
const CustomTitleCode = "custom"

// Titles is the fixed set drawn from when a chat has no custom title.
var Titles = []Title{
	{Code: "jester", Label: "Jester"},
	{Code: "legend", Label: "Legend"},
	{Code: "beauty", Label: "Beauty"},
	{Code: "clown", Label: "Clown"},
}

func pickTitle(custom string, rnd mind.RandomSource) Title {
	if custom != "" {
		return Title{Code: CustomTitleCode, Label: custom}
	}
	return Titles[rnd.Intn(len(Titles))]
}

func titleLabel(code, custom string) string {
	for _, t := range Titles {
		if t.Code == code {
			return t.Label
		}
	}
	if code == CustomTitleCode {
		if custom != "" {
			return custom
		}
		return "Nickname"
	}
	return code
}
