package collections

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFoldl(t *testing.T) {
	sum := Foldl(func(acc int, next int) int { return acc + next }, 0, []int{1, 2, 3})
	assert.Equal(t, 6, sum)
}

func TestFmap(t *testing.T) {
	doubled := Fmap(func(x int) int { return x * 2 }, []int{1, 2, 3})
	assert.Equal(t, []int{2, 4, 6}, doubled)
}

func TestFilter(t *testing.T) {
	odd := Filter(func(x int) bool { return x%2 == 1 }, []int{1, 2, 3, 4, 5})
	assert.Equal(t, []int{1, 3, 5}, odd)
}

func TestFirst(t *testing.T) {
	assert.Equal(t, 1, *First([]int{1, 2}))
	assert.Nil(t, First([]int{}))
}
