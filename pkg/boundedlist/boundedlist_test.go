package boundedlist

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPrependOrderAndCap(t *testing.T) {
	var list []int
	for i := 1; i <= 25; i++ {
		list = Prepend(list, i, 20, nil)
		assert.LessOrEqual(t, len(list), 20)
	}

	assert.Len(t, list, 20)
	assert.Equal(t, 25, list[0])
	assert.Equal(t, 6, list[19])
}

func TestPrependDoesNotMutateInput(t *testing.T) {
	in := []string{"b", "c"}
	out := Prepend(in, "a", 2, nil)

	assert.Equal(t, []string{"a", "b"}, out)
	assert.Equal(t, []string{"b", "c"}, in)
}

func TestPrependDedupe(t *testing.T) {
	type ref struct{ id, name string }
	same := func(a, b ref) bool { return a.id == b.id }

	list := []ref{{"1", "one"}, {"2", "two"}, {"3", "three"}}
	out := Prepend(list, ref{"2", "two again"}, 50, same)

	assert.Equal(t, []ref{{"2", "two again"}, {"1", "one"}, {"3", "three"}}, out)
}

func TestPrependZeroMax(t *testing.T) {
	assert.Empty(t, Prepend([]int{1}, 2, 0, nil))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, []int{1, 2}, Truncate([]int{1, 2, 3}, 2))
	assert.Equal(t, []int{1}, Truncate([]int{1}, 5))
	assert.Empty(t, Truncate([]int{1}, -1))
}
