package tracker

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"

	"telegate/internal/platform"
)

func TestParseTrafficSource(t *testing.T) {
	assert.Equal(t, "PB", ParseTrafficSource("https://lbry.tv/?utm_source=PB").UTMSource)
	assert.Equal(t, "reddit", ParseTrafficSource("https://lbry.tv/$/discover?x=1&utm_source=reddit").UTMSource)
	assert.Equal(t, "", ParseTrafficSource("https://lbry.tv/").UTMSource)
	assert.Equal(t, "", ParseTrafficSource("%zz").UTMSource)
}

func TestBuildWeb(t *testing.T) {
	r := Build(platform.VariantWeb, TrafficSource{}, DefaultIDs())
	assert.Equal(t, []Descriptor{
		{ID: "UA-60403362-12"},
		{ID: "UA-60403362-16", Name: "tracker2"},
	}, r.Descriptors())

	name, ok := r.Secondary()
	assert.True(t, ok)
	assert.Equal(t, SecondaryName, name)
	assert.Equal(t, "UA-60403362-12", r.Default().ID)
}

func TestBuildWebExcludedSource(t *testing.T) {
	r := Build(platform.VariantWeb, ParseTrafficSource("https://lbry.tv/?utm_source=PB"), DefaultIDs())
	assert.Equal(t, []Descriptor{{ID: "UA-60403362-12"}}, r.Descriptors())

	_, ok := r.Secondary()
	assert.False(t, ok)
}

func TestBuildSourceMatchIsExact(t *testing.T) {
	for _, src := range []string{"pb", "PB2", " PB"} {
		r := Build(platform.VariantWeb, TrafficSource{UTMSource: src}, DefaultIDs())
		assert.Equal(t, 2, r.Len(), src)
	}
}

func TestBuildDesktop(t *testing.T) {
	r := Build(platform.VariantDesktop, TrafficSource{UTMSource: "reddit"}, IDs{})
	assert.Equal(t, []Descriptor{{ID: "UA-60403362-13"}}, r.Descriptors())

	_, ok := r.Secondary()
	assert.False(t, ok)
}

func TestBuildOverriddenIDs(t *testing.T) {
	r := Build(platform.VariantWeb, TrafficSource{}, IDs{Web: "UA-1-1", Secondary: "UA-1-2"})
	assert.Equal(t, "UA-1-1", r.Default().ID)
	assert.Equal(t, "UA-1-2", r.Descriptors()[1].ID)
}

func TestDescriptorsIsACopy(t *testing.T) {
	r := Build(platform.VariantWeb, TrafficSource{}, DefaultIDs())
	ds := r.Descriptors()
	ds[0].ID = "mutated"
	assert.Equal(t, DefaultWebID, r.Default().ID)
}

func TestRegistryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("web registry has the secondary channel unless the source is excluded", prop.ForAll(
		func(source string) bool {
			r := Build(platform.VariantWeb, TrafficSource{UTMSource: source}, DefaultIDs())
			_, has := r.Secondary()
			if source == "PB" {
				return r.Len() == 1 && !has
			}
			return r.Len() == 2 && has && r.Default().Name == ""
		},
		gen.OneGenOf(gen.Const("PB"), gen.AlphaString()),
	))

	properties.Property("desktop registry is always the single desktop channel", prop.ForAll(
		func(source string) bool {
			ds := Build(platform.VariantDesktop, TrafficSource{UTMSource: source}, DefaultIDs()).Descriptors()
			return len(ds) == 1 && ds[0] == Descriptor{ID: DefaultDesktopID}
		},
		gen.OneGenOf(gen.Const("PB"), gen.AnyString()),
	))

	properties.TestingRun(t)
}
