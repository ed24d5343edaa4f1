package model

// Stem types
type StemType string

const (
	StemVocals        StemType = "vocals"
	StemBackingVocals StemType = "backing_vocals"
	StemDrums         StemType = "drums"
	StemBass          StemType = "bass"
	StemGuitar        StemType = "guitar"
	StemKeyboard      StemType = "keyboard"
	StemPercussion    StemType = "percussion"
	StemStrings       StemType = "strings"
	StemSynth         StemType = "synth"
	StemFX            StemType = "fx"
	StemBrass         StemType = "brass"
	StemWoodwinds     StemType = "woodwinds"
)

var ValidStemTypes = []StemType{
	StemVocals, StemBackingVocals, StemDrums, StemBass, StemGuitar,
	StemKeyboard, StemPercussion, StemStrings, StemSynth, StemFX,
	StemBrass, StemWoodwinds,
}

// IsValidStemType reports whether s names a known stem type.
func IsValidStemType(s StemType) bool {
	for _, t := range ValidStemTypes {
		if t == s {
			return true
		}
	}
	return false
}

// DefaultCoreStems is the subset of stem types required before the full-mix
// preview layer is replaced by individual layers.
var DefaultCoreStems = []StemType{StemDrums, StemBass, StemVocals}

// Clip status as reported by the generation provider
type ClipStatus string

const (
	ClipStatusSubmitted ClipStatus = "submitted"
	ClipStatusQueued    ClipStatus = "queued"
	ClipStatusStreaming ClipStatus = "streaming"
	ClipStatusComplete  ClipStatus = "complete"
	ClipStatusError     ClipStatus = "error"
)

// Terminal reports whether the status can no longer change.
func (s ClipStatus) Terminal() bool {
	return s == ClipStatusComplete || s == ClipStatusError
}

// Layer generation status. Ephemeral: cleared or pruned on reload because the
// polling loop that would resolve it dies with the process.
type GenerationStatus string

const (
	GenerationNone       GenerationStatus = ""
	GenerationGenerating GenerationStatus = "generating"
	GenerationSeparating GenerationStatus = "separating"
	GenerationLoading    GenerationStatus = "loading"
	GenerationError      GenerationStatus = "error"
)

// A/B comparison state for a layer
type ABState string

const (
	ABNone      ABState = "none"
	ABComparing ABState = "comparing"
)

// Generation phase for the whole project, broadcast over the WebSocket hub
type Phase string

const (
	PhaseIdle       Phase = "idle"
	PhaseGenerating Phase = "generating"
	PhaseSeparating Phase = "separating"
	PhaseLoading    Phase = "loading"
	PhaseComplete   Phase = "complete"
	PhaseError      Phase = "error"
)
