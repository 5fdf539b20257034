package rules

import (
	"regexp"

	lru "github.com/hashicorp/golang-lru/v2"
)

const regexCacheSize = 1024

var regexCache = mustCache()

func mustCache() *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](regexCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}

// Compile returns the compiled form of pattern, reusing earlier compilations.
// Safe for concurrent use.
func Compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := regexCache.Get(pattern); ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Add(pattern, re)
	return re, nil
}
