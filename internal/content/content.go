package content

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shopspring/decimal"
)

// Catalog types served from the content directory.
const (
	TypeSpreads      = "spreads"
	TypeTarot        = "tarot"
	TypeIChing       = "iching"
	TypeRueda        = "rueda"
	TypePresets      = "presets"
	TypeMeditaciones = "meditaciones"
)

// Oracle types a spread can reference.
const (
	OracleTarot  = "tarot"
	OracleIChing = "iching"
	OracleRueda  = "rueda"
)

var knownTypes = []string{TypeSpreads, TypeTarot, TypeIChing, TypeRueda, TypePresets, TypeMeditaciones}

// Spread is an oracle-reading template: which oracle, how many items to draw
// and the ordered position labels they land on.
type Spread struct {
	ID          string          `json:"id"`
	Nombre      string          `json:"nombre"`
	Oraculo     string          `json:"oraculo"` // tarot, iching or rueda
	Cartas      int             `json:"cartas"`
	Posiciones  []string        `json:"posiciones"`
	Precio      decimal.Decimal `json:"precio"`
	Descripcion string          `json:"descripcion,omitempty"`
}

type TarotCard struct {
	Name     string `json:"name"`
	Arcano   string `json:"arcano,omitempty"`
	Upright  string `json:"upright"`
	Reversed string `json:"reversed"`
	Image    string `json:"image,omitempty"`
}

type Hexagram struct {
	Hex       int      `json:"hex"`
	Nombre    string   `json:"nombre"`
	Consejo   string   `json:"consejo"`
	Trigramas []string `json:"trigramas,omitempty"`
	Image     string   `json:"image,omitempty"`
}

type Animal struct {
	Animal    string `json:"animal"`
	Arquetipo string `json:"arquetipo"`
	Medicina  string `json:"medicina"`
	Image     string `json:"image,omitempty"`
}

// Repository serves the read-only content catalog from a directory of JSON
// files, caching both the raw bytes and the parsed structures. Everything is
// immutable after load except through Save, which re-reads the touched type.
type Repository struct {
	dir string

	mu      sync.RWMutex
	raw     map[string]json.RawMessage
	spreads map[string]*Spread
	tarot   []TarotCard
	iching  []Hexagram
	rueda   []Animal
}

// Load reads every catalog file from dir. Missing presets or meditaciones are
// tolerated; the oracle catalogs and spreads are required.
func Load(dir string) (*Repository, error) {
	r := &Repository{
		dir: dir,
		raw: make(map[string]json.RawMessage),
	}

	for _, t := range knownTypes {
		if err := r.loadType(t); err != nil {
			if os.IsNotExist(err) && (t == TypePresets || t == TypeMeditaciones) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s content: %w", t, err)
		}
	}

	return r, nil
}

func (r *Repository) loadType(contentType string) error {
	data, err := os.ReadFile(filepath.Join(r.dir, contentType+".json"))
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	switch contentType {
	case TypeSpreads:
		var spreads map[string]*Spread
		if err := json.Unmarshal(data, &spreads); err != nil {
			return err
		}
		for id, s := range spreads {
			s.ID = id
		}
		r.spreads = spreads
	case TypeTarot:
		if err := json.Unmarshal(data, &r.tarot); err != nil {
			return err
		}
	case TypeIChing:
		if err := json.Unmarshal(data, &r.iching); err != nil {
			return err
		}
	case TypeRueda:
		if err := json.Unmarshal(data, &r.rueda); err != nil {
			return err
		}
	default:
		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s.json", contentType)
		}
	}

	r.raw[contentType] = json.RawMessage(data)
	return nil
}

// Spread looks up a spread definition by id.
func (r *Repository) Spread(id string) (*Spread, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.spreads[id]
	return s, ok
}

// Spreads returns all spread definitions keyed by id.
func (r *Repository) Spreads() map[string]*Spread {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*Spread, len(r.spreads))
	for id, s := range r.spreads {
		out[id] = s
	}
	return out
}

// TarotDeck returns the full tarot catalog.
func (r *Repository) TarotDeck() []TarotCard {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tarot
}

// Hexagrams returns the I Ching catalog.
func (r *Repository) Hexagrams() []Hexagram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.iching
}

// Animals returns the rueda medicinal catalog.
func (r *Repository) Animals() []Animal {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.rueda
}

// Raw returns the verbatim JSON for a content type, as served by the content
// endpoints.
func (r *Repository) Raw(contentType string) (json.RawMessage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	data, ok := r.raw[contentType]
	if !ok {
		return nil, fmt.Errorf("unknown content type: %s", contentType)
	}
	return data, nil
}

// Save writes an updated catalog file and refreshes the cache for that type.
// Used by the admin content endpoint only.
func (r *Repository) Save(contentType string, data json.RawMessage) error {
	valid := false
	for _, t := range knownTypes {
		if t == contentType {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("unknown content type: %s", contentType)
	}
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON for %s content", contentType)
	}

	if err := os.WriteFile(filepath.Join(r.dir, contentType+".json"), data, 0o644); err != nil {
		return fmt.Errorf("failed to save %s content: %w", contentType, err)
	}

	return r.loadType(contentType)
}
