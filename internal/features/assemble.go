package features

import "selinfer/internal/sel"

// derivedFormula computes the one skill-specific derived feature from
// already-fetched linguistic and behavioral values. Kept as a table rather
// than open-coded branching per spec §9 ("design notes").
var derivedFormula = map[sel.Skill]func(ling, beh map[string]float64) float64{
	sel.SkillEmpathy: func(ling, beh map[string]float64) float64 {
		return ling["positive_sentiment"] * ling["social_processes"]
	},
	sel.SkillProblemSolving: func(ling, beh map[string]float64) float64 {
		return ling["problem_solving_language"] * beh["task_completion_rate"]
	},
	sel.SkillSelfRegulation: func(ling, beh map[string]float64) float64 {
		return beh["recovery_rate"] * beh["distraction_resistance"]
	},
	sel.SkillResilience: func(ling, beh map[string]float64) float64 {
		return ling["perseverance_indicators"] * beh["recovery_rate"]
	},
}

// Assemble builds the dense 26-dim feature vector for skill in a fixed
// order: the 16 sel.LinguisticFields, the 9 sel.BehavioralFields, then the
// derived field. It does not consult a model artifact's feature manifest;
// the manifest's names and order are not checked against this layout. Missing
// inputs (nil record, or a field absent from Values) materialize as 0.0.
func Assemble(skill sel.Skill, ling *sel.LinguisticRecord, beh *sel.BehavioralRecord) sel.FeatureVector {
	lingValues := map[string]float64{}
	if ling != nil {
		lingValues = ling.Values
	}
	behValues := map[string]float64{}
	if beh != nil {
		behValues = beh.Values
	}

	values := make([]float64, 0, sel.FeatureVectorLen)
	for _, name := range sel.LinguisticFields {
		values = append(values, lingValues[name])
	}
	for _, name := range sel.BehavioralFields {
		values = append(values, behValues[name])
	}

	formula := derivedFormula[skill]
	var derived float64
	if formula != nil {
		derived = formula(lingValues, behValues)
	}
	values = append(values, derived)

	return sel.FeatureVector{Skill: skill, Values: values}
}

// Completeness returns the fraction of the feature vector's entries that
// are non-zero, clipped to [0,1]. Feeds C_completeness in the confidence
// calibration (spec §4.6).
func Completeness(vector sel.FeatureVector) float64 {
	if len(vector.Values) == 0 {
		return 0
	}
	var nonZero int
	for _, v := range vector.Values {
		if v != 0 {
			nonZero++
		}
	}
	frac := float64(nonZero) / float64(len(vector.Values))
	if frac < 0 {
		return 0
	}
	if frac > 1 {
		return 1
	}
	return frac
}
