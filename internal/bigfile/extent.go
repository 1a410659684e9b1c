package bigfile

import (
	"slices"
	"sort"
)

/*
  ALGORITHM: Payload extent lookup (Ceiling Search)
  ------------------------------------------------------------------
  Example Data (data region is 300 bytes):
  Key A: Offset 0
  Key B: Offset 120
  Key C: Offset 120   (shares B's payload)
  Key D: Offset 250

  Sorted distinct offsets: [0, 120, 250]

  Goal: length of the payload at 120.
  1. Binary Search: smallest index 'i' where offsets[i] > 120 -> i = 2 (250).
  2. End = offsets[i] = 250, so the payload is [120, 250).
  3. When no larger offset exists the payload runs to the end of the
     data region: 250 -> [250, 300).
*/

type extentIndex struct {
	offsets []uint32
	end     int64 // Length of the data region
}

func newExtentIndex(files []FileEntry, end int64) *extentIndex {
	offsets := make([]uint32, 0, len(files))
	for i := range files {
		if files[i].Stub() {
			continue
		}
		offsets = append(offsets, files[i].Offset)
	}
	slices.Sort(offsets)
	return &extentIndex{offsets: slices.Compact(offsets), end: end}
}

// extent returns the payload span [start, end) for an offset. ok is false
// when the offset lies outside the data region.
func (x *extentIndex) extent(offset uint32) (start, end int64, ok bool) {
	start = int64(offset)
	if start >= x.end {
		return 0, 0, false
	}
	i := sort.Search(len(x.offsets), func(k int) bool {
		return x.offsets[k] > offset
	})
	end = x.end
	if i < len(x.offsets) && int64(x.offsets[i]) < x.end {
		end = int64(x.offsets[i])
	}
	return start, end, true
}
