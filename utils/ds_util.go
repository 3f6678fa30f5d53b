package utils

import (
	"github.com/emirpasic/gods/sets/hashset"
)

// List2set 把切片转换成集合，重复的元素只保留一个
func List2set[T comparable](list []T) *hashset.Set {
	set := hashset.New()
	for _, value := range list {
		set.Add(value)
	}
	return set
}
