//go:build !blockcache_debug

package blockcache

const debugging = false

func assert(bool, string) {}
