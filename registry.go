package lmkv

import (
	"slices"

	"github.com/zhangyunhao116/skipmap"
)

// openPaths holds the absolute path of every environment open in this
// process. A nil value marks a path claimed by an Open still in progress.
var openPaths = skipmap.New[string, *Environment]()

func claimPath(path string) bool {
	_, loaded := openPaths.LoadOrStore(path, nil)
	return !loaded
}

func releasePath(path string) {
	openPaths.Delete(path)
}

// OpenEnvironments returns the paths of environments currently open in this
// process, sorted.
func OpenEnvironments() []string {
	paths := make([]string, 0, openPaths.Len())
	openPaths.Range(func(path string, env *Environment) bool {
		if env != nil {
			paths = append(paths, path)
		}
		return true
	})
	slices.Sort(paths)
	return paths
}
