package catalogue

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lines(n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("line %d", i+1)
	}
	return strings.Join(parts, "\n")
}

func testHymns() []Hymn {
	return []Hymn{
		{ID: "1", Title: "ሆሣዕና", Lyrics: lines(3), Section: "baptism"},
		{ID: "2", Title: "ተጠመቀ", Lyrics: lines(9), Section: "baptism"},
		{ID: "3", Title: "ቃና", Lyrics: lines(8), Section: "cana"},
		{ID: "4", Title: "No section", Lyrics: ""},
		{ID: "5", Title: "መድኃኔዓለም", Lyrics: lines(12), Section: "thanksgiving"},
	}
}

func ids(hymns []IndexedHymn) []string {
	out := make([]string, len(hymns))
	for i, h := range hymns {
		out[i] = h.ID
	}
	return out
}

func builtIndex(t *testing.T, hymns []Hymn) *Index {
	t.Helper()
	x := NewIndex()
	require.NoError(t, x.Build(hymns))
	return x
}

func TestIndex_Completeness(t *testing.T) {
	hymns := testHymns()
	x := builtIndex(t, hymns)

	all := x.All()
	require.Len(t, all, len(hymns))
	count := map[string]int{}
	for _, h := range all {
		count[h.ID]++
	}
	for _, h := range hymns {
		assert.Equal(t, 1, count[h.ID], "hymn %s indexed exactly once", h.ID)
		if h.Section == "" {
			continue
		}
		assert.Contains(t, ids(x.BySection(h.Section)), h.ID)
	}

	bucketed := 0
	for _, s := range x.Sections() {
		bucketed += len(x.BySection(s.ID))
	}
	assert.Equal(t, 4, bucketed, "hymn without a section is in no bucket")
}

func TestIndex_LengthClassification(t *testing.T) {
	x := builtIndex(t, testHymns())

	want := map[string]LengthType{
		"1": LengthShort,
		"2": LengthLong,
		"3": LengthShort, // exactly at the threshold
		"4": LengthShort, // empty lyrics
		"5": LengthLong,
	}
	for _, h := range x.All() {
		assert.Equal(t, want[h.ID], h.LengthType, "hymn %s", h.ID)
	}
}

func TestIndex_SearchTextIsFolded(t *testing.T) {
	x := builtIndex(t, []Hymn{{ID: "A7", Title: "ሐሌ Luya", Lyrics: "ዐመን"}})

	h, ok := x.Get("A7")
	require.True(t, ok)
	assert.Equal(t, "ሀሌ luya አመን a7", h.SearchText)
}

func TestIndex_BuildOnce(t *testing.T) {
	x := NewIndex()
	assert.False(t, x.Ready())

	require.NoError(t, x.Build(testHymns()))
	assert.True(t, x.Ready())

	err := x.Build([]Hymn{{ID: "99"}})
	assert.ErrorIs(t, err, ErrAlreadyBuilt)
	_, ok := x.Get("99")
	assert.False(t, ok)
}

func TestIndex_WaitForReady(t *testing.T) {
	x := NewIndex()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, x.WaitForReady(ctx), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- x.WaitForReady(context.Background()) }()
	require.NoError(t, x.Build(testHymns()))

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("WaitForReady did not return after Build")
	}
}

func TestIndex_UnknownSection(t *testing.T) {
	x := builtIndex(t, testHymns())
	got := x.BySection("nope")
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestIndex_Sections(t *testing.T) {
	x := builtIndex(t, testHymns())
	assert.Equal(t, []Section{
		{ID: "baptism", Label: "baptism", Count: 2},
		{ID: "cana", Label: "cana", Count: 1},
		{ID: "thanksgiving", Label: "thanksgiving", Count: 1},
	}, x.Sections())
}

func TestIndex_UpdateOne(t *testing.T) {
	x := builtIndex(t, testHymns())

	t.Run("replaces in place and re-derives", func(t *testing.T) {
		x.UpdateOne(Hymn{ID: "1", Title: "ሆሣዕና", Lyrics: lines(10), Section: "baptism"})

		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(x.All()))
		h, _ := x.Get("1")
		assert.Equal(t, LengthLong, h.LengthType)
		assert.Equal(t, []string{"1", "2"}, ids(x.BySection("baptism")))
	})

	t.Run("moves between buckets", func(t *testing.T) {
		x.UpdateOne(Hymn{ID: "2", Title: "ተጠመቀ", Section: "cana"})

		assert.Equal(t, []string{"1"}, ids(x.BySection("baptism")))
		assert.Equal(t, []string{"3", "2"}, ids(x.BySection("cana")))
		assert.Equal(t, []string{"1", "2", "3", "4", "5"}, ids(x.All()))
	})

	t.Run("appends unknown ids", func(t *testing.T) {
		x.UpdateOne(Hymn{ID: "6", Title: "New", Section: "new"})

		assert.Equal(t, []string{"1", "2", "3", "4", "5", "6"}, ids(x.All()))
		assert.Equal(t, []string{"6"}, ids(x.BySection("new")))
	})

	t.Run("losing the section drops the bucket entry", func(t *testing.T) {
		x.UpdateOne(Hymn{ID: "6", Title: "New"})
		assert.Empty(t, x.BySection("new"))
		for _, s := range x.Sections() {
			assert.NotEqual(t, "new", s.ID)
		}
	})
}

func TestIndex_RemoveOne(t *testing.T) {
	x := builtIndex(t, testHymns())

	assert.True(t, x.RemoveOne("2"))
	assert.False(t, x.RemoveOne("2"))

	assert.Equal(t, []string{"1", "3", "4", "5"}, ids(x.All()))
	assert.Equal(t, []string{"1"}, ids(x.BySection("baptism")))
	_, ok := x.Get("2")
	assert.False(t, ok)
}

func TestIndex_CompactionKeepsOrder(t *testing.T) {
	var hymns []Hymn
	for i := 0; i < 200; i++ {
		hymns = append(hymns, Hymn{ID: fmt.Sprint(i), Title: "h", Section: fmt.Sprint("s", i%2)})
	}
	x := builtIndex(t, hymns)

	var want []string
	for i := 0; i < 200; i++ {
		if i%3 == 0 {
			want = append(want, fmt.Sprint(i))
			continue
		}
		require.True(t, x.RemoveOne(fmt.Sprint(i)))
	}

	assert.Equal(t, want, ids(x.All()))
	assert.Equal(t, len(want), x.Len())

	var even []string
	for _, id := range want {
		n, err := strconv.Atoi(id)
		require.NoError(t, err)
		if n%2 == 0 {
			even = append(even, id)
		}
	}
	assert.Equal(t, even, ids(x.BySection("s0")))

	// ids removed before compaction can come back
	x.UpdateOne(Hymn{ID: "1", Title: "back", Section: "s1"})
	all := ids(x.All())
	assert.Equal(t, "1", all[len(all)-1])
}

func TestIndex_FeaturedForFeast(t *testing.T) {
	var hymns []Hymn
	for i := 0; i < 15; i++ {
		hymns = append(hymns, Hymn{ID: fmt.Sprint(i), Section: "mary"})
	}
	hymns = append(hymns, Hymn{ID: "g1", Section: "gabriel"})
	x := builtIndex(t, hymns)

	assert.Len(t, x.FeaturedForFeast("mary"), 10)
	assert.Equal(t, []string{"g1"}, ids(x.FeaturedForFeast("gabriel")))
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, ids(x.FeaturedForFeast("")))
	assert.Equal(t, []string{"0", "1", "2", "3", "4"}, ids(x.FeaturedForFeast("unknown")))
}

func TestIndex_Subscribe(t *testing.T) {
	x := NewIndex()
	calls := 0
	unsubscribe := x.Subscribe(func() { calls++ })

	require.NoError(t, x.Build(testHymns()))
	x.UpdateOne(Hymn{ID: "1", Title: "x"})
	x.RemoveOne("missing")
	x.RemoveOne("1")
	assert.Equal(t, 3, calls)

	unsubscribe()
	x.UpdateOne(Hymn{ID: "7"})
	assert.Equal(t, 3, calls)
}
