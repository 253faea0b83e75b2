package drafting

const (
	ToneCoolProfessional = "cool_professional"
	ToneWarmProfessional = "warm_professional"
	ToneFriendlyPersonal = "friendly_personal"
)

// ToneBand describes how a draft in that band should read.
type ToneBand struct {
	Band                       string `json:"tone_band"`
	GreetingStyle              string `json:"greeting_style"`
	Directness                 string `json:"directness"`
	PersonalReferenceAllowance string `json:"personal_reference_allowance"`
	SentenceLengthTarget       string `json:"sentence_length_target"`
	ClosingStyle               string `json:"closing_style"`
}

// ResolveToneBand maps a relationship score to a tone band. Boundaries are
// inclusive on the lower side: 35 is still cool, 70 is still warm.
func ResolveToneBand(relationshipScore float64) ToneBand {
	if relationshipScore <= 35 {
		return ToneBand{
			Band:                       ToneCoolProfessional,
			GreetingStyle:              "formal",
			Directness:                 "high",
			PersonalReferenceAllowance: "minimal",
			SentenceLengthTarget:       "short",
			ClosingStyle:               "professional",
		}
	}
	if relationshipScore <= 70 {
		return ToneBand{
			Band:                       ToneWarmProfessional,
			GreetingStyle:              "warm",
			Directness:                 "balanced",
			PersonalReferenceAllowance: "limited",
			SentenceLengthTarget:       "medium",
			ClosingStyle:               "friendly-professional",
		}
	}
	return ToneBand{
		Band:                       ToneFriendlyPersonal,
		GreetingStyle:              "informal",
		Directness:                 "balanced",
		PersonalReferenceAllowance: "high",
		SentenceLengthTarget:       "medium",
		ClosingStyle:               "personal",
	}
}
