package features

import (
	"testing"

	"github.com/stretchr/testify/require"

	"selinfer/internal/sel"
)

func TestAssembleMissingRecordsYieldZeros(t *testing.T) {
	v := Assemble(sel.SkillEmpathy, nil, nil)
	require.Len(t, v.Values, sel.FeatureVectorLen)
	for _, val := range v.Values {
		require.Equal(t, 0.0, val)
	}
	require.Equal(t, 0.0, Completeness(v))
}

func TestAssembleOrderMatchesManifestFields(t *testing.T) {
	ling := &sel.LinguisticRecord{Values: map[string]float64{"empathy_markers": 8, "positive_sentiment": 0.7, "social_processes": 0.6}}
	beh := &sel.BehavioralRecord{Values: map[string]float64{"task_completion_rate": 0.9, "event_count": 40}}

	v := Assemble(sel.SkillEmpathy, ling, beh)
	require.Equal(t, 8.0, v.Values[0]) // empathy_markers is LinguisticFields[0]
	require.Equal(t, 0.9, v.Values[len(sel.LinguisticFields)])
	require.InDelta(t, 0.7*0.6, v.Values[len(v.Values)-1], 1e-9) // derived field
}

func TestCompletenessClippedToUnitInterval(t *testing.T) {
	v := sel.FeatureVector{Values: []float64{1, 1, 0, 0}}
	require.Equal(t, 0.5, Completeness(v))
}

func TestDerivedFormulaDefinedForEverySkill(t *testing.T) {
	for _, sk := range sel.Skills {
		_, ok := derivedFormula[sk]
		require.True(t, ok, "skill %s must have a derived formula", sk)
	}
}
