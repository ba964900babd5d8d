package oracle

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pleyazul/oraculo-api/internal/content"
	"github.com/pleyazul/oraculo-api/internal/types"
)

// DrawnCard is a tarot card placed on a spread position. Reversed shadows the
// catalog card's reversed-meaning text in the JSON payload; the text that
// applies ends up in Interpretation.
type DrawnCard struct {
	content.TarotCard
	Reversed       bool   `json:"reversed"`
	Position       string `json:"position"`
	Interpretation string `json:"interpretation"`
}

// DrawnAnimal is a totem animal placed on a spread position.
type DrawnAnimal struct {
	content.Animal
	Position string `json:"position"`
}

// Result is the oracle-typed reading payload. Exactly one of Cards, Hexagram
// or Animals is set, matching Type.
type Result struct {
	Type      string            `json:"type"`
	Spread    *content.Spread   `json:"spread"`
	Cards     []DrawnCard       `json:"cards,omitempty"`
	Hexagram  *content.Hexagram `json:"hexagram,omitempty"`
	Animals   []DrawnAnimal     `json:"animals,omitempty"`
	Message   string            `json:"message"`
	Timestamp string            `json:"timestamp"`
}

// Catalog supplies the oracle item pools. Satisfied by *content.Repository.
type Catalog interface {
	TarotDeck() []content.TarotCard
	Hexagrams() []content.Hexagram
	Animals() []content.Animal
}

// Generate produces a reading for the spread, drawing from the catalog with
// the given source. It dispatches on the spread's oracle type.
func Generate(spread *content.Spread, catalog Catalog, src Source) (*Result, error) {
	switch spread.Oraculo {
	case content.OracleTarot:
		return Tarot(spread, catalog.TarotDeck(), src)
	case content.OracleIChing:
		return IChing(spread, catalog.Hexagrams(), src)
	case content.OracleRueda:
		return Rueda(spread, catalog.Animals(), src)
	default:
		return nil, fmt.Errorf("unknown oracle type: %s", spread.Oraculo)
	}
}

// Tarot draws the spread's card count from the deck without replacement and
// flips a fair coin per card for reversal.
func Tarot(spread *content.Spread, deck []content.TarotCard, src Source) (*Result, error) {
	indexes, err := drawIndexes(src, len(deck), spread.Cartas)
	if err != nil {
		logCatalogShortfall(spread, len(deck))
		return nil, err
	}

	cards := make([]DrawnCard, len(indexes))
	for i, idx := range indexes {
		card := deck[idx]
		reversed := src.Intn(2) == 1

		interpretation := card.Upright
		if reversed {
			interpretation = card.Reversed
		}

		cards[i] = DrawnCard{
			TarotCard:      card,
			Reversed:       reversed,
			Position:       position(spread, i, "Carta"),
			Interpretation: interpretation,
		}
	}

	return &Result{
		Type:      content.OracleTarot,
		Spread:    spread,
		Cards:     cards,
		Message:   "Las cartas han sido elegidas. Confía en su sabiduría.",
		Timestamp: now(),
	}, nil
}

// IChing draws a single hexagram and nests its full record in the payload.
func IChing(spread *content.Spread, hexagrams []content.Hexagram, src Source) (*Result, error) {
	if len(hexagrams) == 0 {
		logCatalogShortfall(spread, 0)
		return nil, types.ErrInsufficientCatalog
	}

	hexagram := hexagrams[src.Intn(len(hexagrams))]

	return &Result{
		Type:      content.OracleIChing,
		Spread:    spread,
		Hexagram:  &hexagram,
		Message:   "El I Ching revela su sabiduría milenaria.",
		Timestamp: now(),
	}, nil
}

// Rueda draws the spread's count of distinct totem animals, each with its
// medicina text.
func Rueda(spread *content.Spread, pool []content.Animal, src Source) (*Result, error) {
	indexes, err := drawIndexes(src, len(pool), spread.Cartas)
	if err != nil {
		logCatalogShortfall(spread, len(pool))
		return nil, err
	}

	animals := make([]DrawnAnimal, len(indexes))
	for i, idx := range indexes {
		animals[i] = DrawnAnimal{
			Animal:   pool[idx],
			Position: position(spread, i, "Animal"),
		}
	}

	return &Result{
		Type:      content.OracleRueda,
		Spread:    spread,
		Animals:   animals,
		Message:   "Los animales de poder han sido llamados para guiarte.",
		Timestamp: now(),
	}, nil
}

// drawIndexes samples count distinct indexes from [0, poolSize) by shrinking
// the candidate pool after each draw, so no rejection loops are needed.
func drawIndexes(src Source, poolSize, count int) ([]int, error) {
	if count > poolSize {
		return nil, types.ErrInsufficientCatalog
	}

	pool := make([]int, poolSize)
	for i := range pool {
		pool[i] = i
	}

	out := make([]int, count)
	for i := 0; i < count; i++ {
		j := src.Intn(len(pool))
		out[i] = pool[j]
		pool[j] = pool[len(pool)-1]
		pool = pool[:len(pool)-1]
	}
	return out, nil
}

func position(spread *content.Spread, i int, fallback string) string {
	if i < len(spread.Posiciones) {
		return spread.Posiciones[i]
	}
	return fmt.Sprintf("%s %d", fallback, i+1)
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func logCatalogShortfall(spread *content.Spread, available int) {
	log.Error().
		Str("spread_id", spread.ID).
		Str("oracle", spread.Oraculo).
		Int("required", spread.Cartas).
		Int("available", available).
		Msg("catalog cannot satisfy spread draw count")
}
