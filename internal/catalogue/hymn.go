// Package catalogue holds the in-memory hymn index, its search, bundle
// loading and the delta sync against the remote hymn collection.
package catalogue

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/mezmur-app/mezmur-sync/internal/textnorm"
)

// LengthType classifies a hymn by lyric line count.
type LengthType string

const (
	LengthShort LengthType = "SHORT"
	LengthLong  LengthType = "LONG"
)

// LongThreshold is the line count above which a hymn is LONG.
const LongThreshold = 8

// SectionAfanOromo is the section assigned to the Afan Oromo bundle.
const SectionAfanOromo = "Afaan Oromoo"

// Hymn is one catalogue record as bundled or as edited remotely.
type Hymn struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Lyrics      string `json:"lyrics"`
	Translation string `json:"translation,omitempty"`
	Section     string `json:"section,omitempty"`
	AudioURL    string `json:"audioUrl,omitempty"`
	Duration    string `json:"duration,omitempty"`
}

// UnmarshalJSON accepts numeric ids, which older bundles use.
func (h *Hymn) UnmarshalJSON(data []byte) error {
	type plain Hymn
	var raw struct {
		plain
		ID json.RawMessage `json:"id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*h = Hymn(raw.plain)
	id, err := flexID(raw.ID)
	if err != nil {
		return err
	}
	h.ID = id
	return nil
}

func flexID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	return n.String(), nil
}

// IndexedHymn is a Hymn plus the fields derived at indexing time.
type IndexedHymn struct {
	Hymn
	LengthType LengthType `json:"lengthType"`
	SearchText string     `json:"searchText"`
}

// Derive computes the length class and folded search text of h.
func Derive(h Hymn) IndexedHymn {
	return IndexedHymn{
		Hymn:       h,
		LengthType: classify(h.Lyrics),
		SearchText: textnorm.Fold(h.Title + " " + h.Lyrics + " " + h.ID),
	}
}

func classify(lyrics string) LengthType {
	if lyrics == "" {
		return LengthShort
	}
	if strings.Count(lyrics, "\n")+1 > LongThreshold {
		return LengthLong
	}
	return LengthShort
}

// Section is one observed section key.
type Section struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Count int    `json:"count"`
}
