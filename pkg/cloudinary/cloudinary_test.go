package cloudinary

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildImageURL(t *testing.T) {
	assert.Equal(t,
		"https://res.cloudinary.com/demo/image/upload/q_auto,f_auto,w_1280,c_limit/hh/proofs/p1",
		BuildImageURL("demo", "hh/proofs/p1", 0))
	assert.Contains(t, BuildImageURL("demo", "x", 240), "w_240")
}

func TestNewClientWithoutCredentialsIsDisabled(t *testing.T) {
	c, err := NewClientFromParams("", "", "")
	require.NoError(t, err)
	_, _, err = c.UploadImage(context.Background(), strings.NewReader("png"), "f", "p")
	assert.ErrorIs(t, err, ErrNotConfigured)
}
