package concurrent

import (
	"hash/fnv"
)

// HashString 字符串使用 FNV-1a, 分布均匀
func HashString(s string) uint32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(s))
	return h.Sum32()
}
