package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLessonID_Deterministic(t *testing.T) {
	tutor := PublicKey("aa")
	student := PublicKey("bb")

	id1 := LessonID(tutor, student, "cid-1")
	id2 := LessonID(tutor, student, "cid-1")
	assert.Equal(t, id1, id2)

	// Any input change produces a different id.
	assert.NotEqual(t, id1, LessonID(tutor, student, "cid-2"))
	assert.NotEqual(t, id1, LessonID(student, tutor, "cid-1"))
}

func TestContentID_Deterministic(t *testing.T) {
	a := ContentID([]byte("hello"))
	b := ContentID([]byte("hello"))
	c := ContentID([]byte("hello!"))

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64, "content ids are hex blake2b-256")
}

func TestHashWithDomain_LengthPrefixPreventsSplicing(t *testing.T) {
	// ("ab", "c") and ("a", "bc") must not collide.
	x := hashWithDomain(domainContent, []byte("ab"), []byte("c"))
	y := hashWithDomain(domainContent, []byte("a"), []byte("bc"))
	assert.NotEqual(t, x, y)
}
