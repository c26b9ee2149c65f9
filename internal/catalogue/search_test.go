package catalogue

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func searchIndex(t *testing.T) *Index {
	return builtIndex(t, []Hymn{
		{ID: "99", Title: "መድኃኔዓለም ክብር ለአንተ", Lyrics: "ምስጋና ለስምህ", Section: "thanksgiving"},
		{ID: "148", Title: "እመቤቴ ማርያም", Lyrics: "የአምላክ እናት\nአማልጅን", Section: "mary"},
		{ID: "2", Title: "Tetemqe", Lyrics: "Jordan river\nJohn", Section: "baptism"},
		{ID: "oro_1", Title: "Galata", Lyrics: "Yesuus Kiristoos", Section: SectionAfanOromo},
	})
}

func TestSearch_HomophoneInsensitive(t *testing.T) {
	x := searchIndex(t)

	// ኃ/ሃ and ዓ/ኣ variants of the same word
	assert.Equal(t, []string{"99"}, ids(x.Search("መድሃኔኣለም", 0)))
	assert.Equal(t, []string{"99"}, ids(x.Search("መድኃኔዓለም", 0)))
}

func TestSearch_CaseInsensitiveAllTerms(t *testing.T) {
	x := searchIndex(t)

	assert.Equal(t, []string{"2"}, ids(x.Search("JORDAN john", 0)))
	assert.Empty(t, x.Search("jordan galata", 0))
	assert.Equal(t, []string{"oro_1"}, ids(x.Search("oro_", 0)), "ids are searchable")
}

func TestSearch_EmptyAndLimit(t *testing.T) {
	x := searchIndex(t)

	assert.Empty(t, x.Search("", 0))
	assert.Empty(t, x.Search("   ", 0))

	all := x.Search("a", 0)
	assert.Greater(t, len(all), 1)
	assert.Len(t, x.Search("a", 1), 1)
	assert.Equal(t, all[0].ID, x.Search("a", 1)[0].ID)
}

func TestSearch_ReflectsUpdates(t *testing.T) {
	x := searchIndex(t)

	x.UpdateOne(Hymn{ID: "2", Title: "Renamed", Lyrics: "nile"})
	assert.Empty(t, x.Search("jordan", 0))
	assert.Equal(t, []string{"2"}, ids(x.Search("nile", 0)))

	x.RemoveOne("2")
	assert.Empty(t, x.Search("nile", 0))
}
