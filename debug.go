//go:build blockcache_debug

package blockcache

const debugging = true

func assert(cond bool, message string) {
	if !cond {
		panic(message)
	}
}
