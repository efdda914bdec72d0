package index

import "github.com/google/btree"

// numericBucket holds every record key indexed under one normalized
// numeric value. It implements btree.Item so a tree of buckets gives us an
// ordered map from normalized value to key-set (spec §3, §4.L3).
type numericBucket struct {
	val  int64
	keys map[string]struct{}
}

func (b *numericBucket) Less(than btree.Item) bool {
	return b.val < than.(*numericBucket).val
}

// stringBucket is the String-index analogue of numericBucket.
type stringBucket struct {
	val  string
	keys map[string]struct{}
}

func (b *stringBucket) Less(than btree.Item) bool {
	return b.val < than.(*stringBucket).val
}
