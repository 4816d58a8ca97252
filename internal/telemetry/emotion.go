package telemetry

// Emotion is the mood shown for a plant given its latest reading.
type Emotion string

const (
	EmotionHappy       Emotion = "Happy"
	EmotionThirsty     Emotion = "Thirsty"
	EmotionOverwatered Emotion = "Overwatered"
	EmotionTooHot      Emotion = "Too Hot"
	EmotionTooDark     Emotion = "Too Dark"
)

// Classification thresholds.
const (
	thirstyBelowMoisture     = 30
	overwateredAboveMoisture = 80
	tooHotAboveTemperature   = 35
	tooDarkBelowLight        = 200
)

// Classify derives the emotion for a set of readings. Checks run in a fixed
// order and the first match wins, so a dry plant in a hot dark room is
// Thirsty.
func Classify(moisture, temperature, light float64) Emotion {
	switch {
	case moisture < thirstyBelowMoisture:
		return EmotionThirsty
	case moisture > overwateredAboveMoisture:
		return EmotionOverwatered
	case temperature > tooHotAboveTemperature:
		return EmotionTooHot
	case light < tooDarkBelowLight:
		return EmotionTooDark
	default:
		return EmotionHappy
	}
}
