package statepoint

import (
	"unsafe"

	"github.com/kestrel-mc/kestrel/lib/bank"
)

const siteSize = int64(unsafe.Sizeof(bank.Site{}))

// sitesAsBytes views a site slice as raw bytes. Go routes struct slices
// through reflection in the binary package, which is slow and makes tons of
// heap allocations, so for the bulk payload we "cast" to a byte slice
// instead. Site holds only fixed-size fields, so the layout is stable
// within a build.
func sitesAsBytes(sites []bank.Site) []byte {
	if len(sites) == 0 {
		return nil
	}
	return unsafe.Slice(
		(*byte)(unsafe.Pointer(&sites[0])), int64(len(sites))*siteSize)
}
