package kernel

import "strings"

// path.go is spec.md §4.11's path resolution: split on '/', walk one
// component at a time, and — the load-bearing concurrency rule — release
// the lock on the parent directory before acquiring the lock on the child,
// so a lookup of "a/b/c" never holds two inode locks at once (the same
// discipline xv6's namex uses to avoid deadlocking against a concurrent
// rename of an ancestor).

// skipElem returns the next path component of path and the remaining
// suffix, skipping any leading slashes. ok is false once nothing remains.
func skipElem(path string) (elem, rest string, ok bool) {
	i := 0
	for i < len(path) && path[i] == '/' {
		i++
	}
	path = path[i:]
	if path == "" {
		return "", "", false
	}
	j := strings.IndexByte(path, '/')
	if j < 0 {
		return path, "", true
	}
	return path[:j], path[j:], true
}

// namex is the shared engine behind Namei and NameiParent. When nameiparent
// is true it stops one component short and returns that last component's
// name in lastElem.
func (it *InodeTable) namex(x *Ctx, path string, nameiparent bool) (ip *Inode, lastElem string, err Errno) {
	var cur *Inode
	if len(path) > 0 && path[0] == '/' {
		cur = it.Get(x, it.dev, RootInum)
	} else {
		cur = it.Dup(x, x.P.Cwd())
	}

	elem, rest, ok := skipElem(path)
	for ok {
		it.Lock(x, cur)
		if cur.disk.Type != TypeDirectory {
			it.Unlock(x, cur)
			it.Put(x, cur)
			return nil, "", ENOTDIR
		}

		if nameiparent {
			if next, _, more := skipElem(rest); !more {
				_ = next
				it.Unlock(x, cur)
				return cur, elem, EOK
			}
		}

		next, _, lookErr := it.Dirlookup(x, cur, elem)
		it.Unlock(x, cur)
		if lookErr != EOK {
			it.Put(x, cur)
			return nil, "", ENOENT
		}
		it.Put(x, cur)
		cur = next

		elem, rest, ok = skipElem(rest)
	}
	if nameiparent {
		it.Put(x, cur)
		return nil, "", ENOENT
	}
	return cur, "", EOK
}

// Namei resolves path to its inode (unlocked, refcounted).
func (it *InodeTable) Namei(x *Ctx, path string) (*Inode, Errno) {
	ip, _, err := it.namex(x, path, false)
	return ip, err
}

// NameiParent resolves path's parent directory (unlocked, refcounted) and
// returns the final component's name for the caller to act on (create,
// lookup, unlink...).
func (it *InodeTable) NameiParent(x *Ctx, path string) (*Inode, string, Errno) {
	return it.namex(x, path, true)
}
