package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCommonInterests(t *testing.T) {
	mine := []string{"music", "hiking", "chess", "hiking", "film"}
	theirs := []string{"film", "hiking", "chess", "art"}

	assert.Equal(t, []string{"hiking", "chess", "film"}, CommonInterests(mine, theirs, 0))
	assert.Equal(t, []string{"hiking", "chess"}, CommonInterests(mine, theirs, 2))
	assert.Equal(t, []string{}, CommonInterests(nil, theirs, 3))
	assert.Equal(t, []string{}, CommonInterests([]string{"Music"}, []string{"music"}, 3))
}
