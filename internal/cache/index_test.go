package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuilderInsertWithLZMASibling(t *testing.T) {
	b := NewBuilder()
	b.InsertWithLZMASibling("drweb32.vdb", "a1b2c3d4")
	idx := b.Build()

	digest, ok := idx.Lookup("drweb32.vdb")
	assert.True(t, ok)
	assert.Equal(t, "a1b2c3d4", digest)

	digest, ok = idx.Lookup("drweb32.vdb.lzma")
	assert.True(t, ok)
	assert.Equal(t, "a1b2c3d4", digest)

	assert.Equal(t, 2, idx.Len())
}

func TestBuilderInsertExactPathOnly(t *testing.T) {
	b := NewBuilder()
	b.Insert("pkg/sub.xml", "deadbeef")
	idx := b.Build()

	_, ok := idx.Lookup("pkg/sub.xml.lzma")
	assert.False(t, ok)
	digest, ok := idx.Lookup("pkg/sub.xml")
	assert.True(t, ok)
	assert.Equal(t, "deadbeef", digest)
}

func TestIndexLookupMiss(t *testing.T) {
	idx := NewBuilder().Build()
	_, ok := idx.Lookup("missing")
	assert.False(t, ok)
}

func TestIndexBuiltFlag(t *testing.T) {
	var nilIdx *Index
	assert.False(t, nilIdx.Built())

	idx := NewBuilder().Build()
	assert.True(t, idx.Built())
}

func TestIndexKeysSorted(t *testing.T) {
	b := NewBuilder()
	b.Insert("zeta", "1")
	b.Insert("alpha", "2")
	b.Insert("mid", "3")
	idx := b.Build()
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, idx.Keys())
}

func TestIndexOverwrite(t *testing.T) {
	b := NewBuilder()
	b.Insert("f", "old")
	b.Insert("f", "new")
	idx := b.Build()
	digest, ok := idx.Lookup("f")
	assert.True(t, ok)
	assert.Equal(t, "new", digest)
}

func TestNilIndexLookup(t *testing.T) {
	var idx *Index
	_, ok := idx.Lookup("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, idx.Len())
}
