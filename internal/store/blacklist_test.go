package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPgTextArray(t *testing.T) {
	assert.Equal(t, `{}`, pgTextArray(nil))
	assert.Equal(t, `{"a"}`, pgTextArray([]string{"a"}))
	assert.Equal(t,
		`{"5511999990001@s.whatsapp.net","5511999990002@s.whatsapp.net"}`,
		pgTextArray([]string{"5511999990001@s.whatsapp.net", "5511999990002@s.whatsapp.net"}))
	assert.Equal(t, `{"say \"hi\"","back\\slash"}`, pgTextArray([]string{`say "hi"`, `back\slash`}))
}
