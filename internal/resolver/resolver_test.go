package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrderedPreservesPriority(t *testing.T) {
	t.Parallel()

	reg := NewRegistry()
	for _, name := range []string{"tikwm", "snaptik", "douyin"} {
		name := name
		reg.Register(Func(name, func(context.Context, string) (string, error) {
			return "https://cdn.example.com/" + name + ".mp4", nil
		}))
	}

	ordered, err := reg.Ordered([]string{"douyin", "tikwm"})
	require.NoError(t, err)
	require.Len(t, ordered, 2)
	assert.Equal(t, "douyin", ordered[0].Name())
	assert.Equal(t, "tikwm", ordered[1].Name())

	url, err := ordered[1].Resolve(context.Background(), "https://www.tiktok.com/@a/video/1")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/tikwm.mp4", url)
}

func TestRegistryUnknownName(t *testing.T) {
	t.Parallel()

	_, err := NewRegistry().Ordered([]string{"ssstik"})
	require.EqualError(t, err, "resolver ssstik is not registered")
}
