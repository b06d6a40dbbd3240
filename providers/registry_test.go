package providers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryListsAllProviders(t *testing.T) {
	var ids []ProviderID
	for _, p := range Registry() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []ProviderID{OpenAI, Stability, Replicate, Runway}, ids)
}

func TestPriorityPerMediaType(t *testing.T) {
	assert.Equal(t, []ProviderID{OpenAI, Stability, Replicate}, Priority(MediaImage))
	assert.Equal(t, []ProviderID{Runway, Replicate}, Priority(MediaVideo))
	assert.Empty(t, Priority(MediaType("audio")))
}

func TestAvailableFiltersByKeyAndMedia(t *testing.T) {
	keys := Keys{Replicate: "r8", Runway: "rw", Stability: "  "}

	var image []ProviderID
	for _, p := range Available(keys, MediaImage) {
		image = append(image, p.ID)
	}
	assert.Equal(t, []ProviderID{Replicate}, image)

	var video []ProviderID
	for _, p := range Available(keys, MediaVideo) {
		video = append(video, p.ID)
	}
	assert.Equal(t, []ProviderID{Runway, Replicate}, video)

	video = nil
	for _, p := range Available(Keys{OpenAI: "o", Stability: "s", Replicate: "r8", Runway: "rw"}, MediaVideo) {
		video = append(video, p.ID)
	}
	assert.Equal(t, []ProviderID{Runway, Replicate}, video)
}

func TestKeysMerge(t *testing.T) {
	base := Keys{OpenAI: "from-config", Runway: "rw"}
	merged := base.Merge(Keys{OpenAI: "override"})
	assert.Equal(t, "override", merged.OpenAI)
	assert.Equal(t, "rw", merged.Runway)
	assert.False(t, merged.Has(Stability))
}

func TestAcceptsImage(t *testing.T) {
	openai, _ := Lookup(OpenAI)
	replicate, _ := Lookup(Replicate)
	runway, _ := Lookup(Runway)
	assert.False(t, openai.AcceptsImage(MediaImage))
	assert.True(t, replicate.AcceptsImage(MediaImage))
	assert.True(t, runway.AcceptsImage(MediaVideo))
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(OpenAI, "")
	assert.ErrorIs(t, err, ErrAPIKeyRequired)

	_, err = New("midjourney", "key")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	p, err := New(Runway, "key")
	require.NoError(t, err)
	assert.Equal(t, Runway, p.ID())
}

func TestParseProviderID(t *testing.T) {
	id, err := ParseProviderID(" Replicate ")
	require.NoError(t, err)
	assert.Equal(t, Replicate, id)

	_, err = ParseProviderID("dreamifly")
	assert.ErrorIs(t, err, ErrUnknownProvider)
}
