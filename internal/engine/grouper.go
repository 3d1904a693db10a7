package engine

import (
	"sort"

	"github.com/world-shiny-star/pngfier/internal/entities"
)

// BuildSets turns hash buckets into duplicate sets. Singleton buckets are
// dropped. Within a set the earliest-modified file is the original; ties
// break by scan order. Members hardlinked to an already-seen member are
// listed separately since deleting them would free nothing.
func BuildSets(byHash map[uint64][]*entities.FileRecord) []*entities.DuplicateSet {
	type sysID struct{ dev, inode uint64 }

	var sets []*entities.DuplicateSet
	for _, recs := range byHash {
		if len(recs) < 2 {
			continue
		}

		sort.SliceStable(recs, func(i, j int) bool {
			if !recs[i].ModTime.Equal(recs[j].ModTime) {
				return recs[i].ModTime.Before(recs[j].ModTime)
			}
			return recs[i].ScanIndex < recs[j].ScanIndex
		})

		original := recs[0]
		set := &entities.DuplicateSet{Original: original}

		seen := map[sysID]bool{}
		if original.Inode != 0 {
			seen[sysID{original.DeviceID, original.Inode}] = true
		}

		for _, rec := range recs[1:] {
			id := sysID{rec.DeviceID, rec.Inode}
			if rec.Inode != 0 && seen[id] {
				set.Hardlinks = append(set.Hardlinks, rec.Path)
				continue
			}
			seen[id] = true
			set.Duplicates = append(set.Duplicates, rec)
		}

		if len(set.Duplicates) == 0 {
			// Nothing deletable: every extra path was a hardlink.
			continue
		}
		set.Wasted = original.Size * int64(len(set.Duplicates))
		sets = append(sets, set)
	}

	// Map iteration order is random; fix the report order.
	sort.Slice(sets, func(i, j int) bool {
		return sets[i].Original.Path < sets[j].Original.Path
	})

	return sets
}
