// Package verses turns a psalm overview document into a VerseMap: verse
// number to verse text, as discovered in the document at fetch time.
package verses

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/zeebo/blake3"
)

// VerseMap is an immutable mapping from verse number to verse text. A new
// fetch produces a new VerseMap; existing maps are never updated.
type VerseMap struct {
	verses    map[int]string
	digest    string
	fetchedAt time.Time
}

// NewVerseMap copies entries into a new VerseMap.
func NewVerseMap(entries map[int]string, digest string, fetchedAt time.Time) *VerseMap {
	m := &VerseMap{
		verses:    make(map[int]string, len(entries)),
		digest:    digest,
		fetchedAt: fetchedAt,
	}
	for n, text := range entries {
		m.verses[n] = text
	}
	return m
}

// Verse returns the text of verse n.
func (m *VerseMap) Verse(n int) (string, bool) {
	text, ok := m.verses[n]
	return text, ok
}

// Max returns the highest verse number, or false when the map is empty.
func (m *VerseMap) Max() (int, bool) {
	highest := 0
	for n := range m.verses {
		if n > highest {
			highest = n
		}
	}
	return highest, highest > 0
}

// Len returns the number of verses.
func (m *VerseMap) Len() int {
	return len(m.verses)
}

// Numbers returns the verse numbers in ascending order.
func (m *VerseMap) Numbers() []int {
	numbers := make([]int, 0, len(m.verses))
	for n := range m.verses {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers
}

// Entries returns a copy of the underlying mapping.
func (m *VerseMap) Entries() map[int]string {
	out := make(map[int]string, len(m.verses))
	for n, text := range m.verses {
		out[n] = text
	}
	return out
}

// Digest is the hex BLAKE3 hash of the document the map was built from.
func (m *VerseMap) Digest() string {
	return m.digest
}

// FetchedAt is when the source document was retrieved.
func (m *VerseMap) FetchedAt() time.Time {
	return m.fetchedAt
}

// Digest hashes a raw document.
func Digest(markup []byte) string {
	sum := blake3.Sum256(markup)
	return hex.EncodeToString(sum[:])
}
