// Package stems maps provider-specific stem labels onto the StemType enum.
package stems

import (
	"strings"

	"github.com/layertune/api/internal/model"
)

// nameToType resolves the display titles the separation provider attaches to
// stem clips.
var nameToType = map[string]model.StemType{
	"Vocals":         model.StemVocals,
	"Backing Vocals": model.StemBackingVocals,
	"Drums":          model.StemDrums,
	"Bass":           model.StemBass,
	"Guitar":         model.StemGuitar,
	"Keyboard":       model.StemKeyboard,
	"Percussion":     model.StemPercussion,
	"Strings":        model.StemStrings,
	"Synth":          model.StemSynth,
	"FX":             model.StemFX,
	"Brass":          model.StemBrass,
	"Woodwinds":      model.StemWoodwinds,
}

// demucsToType resolves the fixed stem names of the Demucs separation model.
var demucsToType = map[string]model.StemType{
	"vocals": model.StemVocals,
	"drums":  model.StemDrums,
	"bass":   model.StemBass,
	"other":  model.StemFX,
}

// TitleToType resolves a stem clip title to its stem type. Tries the exact
// title first, then the "<track title> - <stem name>" suffix form. Returns
// false when the title is unknown; callers fall back to the catch-all type so
// no stem is silently dropped.
func TitleToType(title string) (model.StemType, bool) {
	if t, ok := nameToType[title]; ok {
		return t, true
	}
	if idx := strings.LastIndex(title, " - "); idx != -1 {
		if t, ok := nameToType[title[idx+3:]]; ok {
			return t, true
		}
	}
	return "", false
}

// TitleToTypeOrFallback resolves a title, mapping anything unresolvable to fx.
func TitleToTypeOrFallback(title string) model.StemType {
	if t, ok := TitleToType(title); ok {
		return t
	}
	return model.StemFX
}

// DemucsNameToType resolves a Demucs stem name. Unknown names are not
// delivered at all, so there is no fallback here.
func DemucsNameToType(name string) (model.StemType, bool) {
	t, ok := demucsToType[name]
	return t, ok
}

// TypeTags returns generation tags biased toward one stem type, used when a
// cover clip is generated just to extract that stem.
var TypeTags = map[model.StemType]string{
	model.StemVocals:        "vocals, singing, voice",
	model.StemBackingVocals: "backing vocals, harmony, choir",
	model.StemDrums:         "drums, beat, rhythm, percussion",
	model.StemBass:          "bass, low-end, groove, bassline",
	model.StemGuitar:        "guitar, acoustic, electric guitar",
	model.StemKeyboard:      "piano, keys, keyboard, melody",
	model.StemPercussion:    "percussion, shaker, tambourine",
	model.StemStrings:       "strings, violin, cello, orchestral",
	model.StemSynth:         "synth, electronic, synthesizer, pad",
	model.StemFX:            "fx, effects, ambient, atmosphere",
	model.StemBrass:         "brass, trumpet, horn, trombone",
	model.StemWoodwinds:     "woodwinds, flute, clarinet, saxophone",
}

// DisplayName renders a stem type for layer names and status messages.
func DisplayName(t model.StemType) string {
	s := strings.ReplaceAll(string(t), "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
