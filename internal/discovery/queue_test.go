package discovery

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PopsByPriorityThenPushOrder(t *testing.T) {
	q := NewQueue(0)
	assert.True(t, q.Push(Query{Term: "a", Priority: 1}))
	assert.True(t, q.Push(Query{Term: "b", Priority: 5}))
	assert.True(t, q.Push(Query{Term: "c", Priority: 1}))
	assert.True(t, q.Push(Query{Term: "d", Priority: 3}))

	var got []string
	for {
		next, ok := q.Pop()
		if !ok {
			break
		}
		got = append(got, next.Term)
	}
	assert.Equal(t, []string{"b", "d", "a", "c"}, got)
	assert.Zero(t, q.Len())
}

func TestQueue_IgnoresRepeatsAndBlankTerms(t *testing.T) {
	q := NewQueue(0)
	assert.True(t, q.Push(Query{Term: "Plumbers", Location: "Springfield, IL"}))
	assert.False(t, q.Push(Query{Term: "plumbers ", Location: "springfield,  IL"}))
	assert.False(t, q.Push(Query{Term: "   "}))
	assert.Equal(t, 1, q.Len())
}

func TestQueue_CapsLifetimeAccepts(t *testing.T) {
	q := NewQueue(2)
	assert.True(t, q.Push(Query{Term: "a"}))
	assert.True(t, q.Push(Query{Term: "b"}))
	assert.False(t, q.Push(Query{Term: "c"}))

	_, ok := q.Pop()
	require.True(t, ok)
	// Popping does not free capacity.
	assert.False(t, q.Push(Query{Term: "d"}))
}

func TestBuildQueries(t *testing.T) {
	qs := BuildQueries("plumbers", "Springfield, IL", []string{"", "best", "local"})
	require.Len(t, qs, 4)

	assert.Equal(t, "plumbers in Springfield, IL", qs[0].Text())
	assert.Equal(t, 5, qs[0].Priority)
	assert.Equal(t, "best plumbers in Springfield, IL", qs[1].Text())
	assert.Equal(t, 3, qs[1].Priority)
	assert.Equal(t, "local plumbers in Springfield, IL", qs[2].Text())
	assert.Equal(t, 2, qs[2].Priority)
	assert.Equal(t, "plumbers in Springfield", qs[3].Text())
	assert.Equal(t, 0, qs[3].Priority)
}

func TestBuildQueries_NoStateOrTerm(t *testing.T) {
	qs := BuildQueries("dentists", "Chicago", nil)
	require.Len(t, qs, 1)
	assert.Equal(t, "dentists in Chicago", qs[0].Text())

	assert.Equal(t, "dentists", Query{Term: "dentists"}.Text())
	assert.Nil(t, BuildQueries(" ", "Chicago", []string{"best"}))
}
