package features

// BehavioralBounds gives the fixed min/max bounds used to min-max normalize
// each behavioral field for evidence fusion (spec §4.7). Values outside
// bounds are clipped by the caller.
var BehavioralBounds = map[string][2]float64{
	"task_completion_rate":     {0, 1},
	"time_efficiency":          {0, 1},
	"retry_count":              {0, 20},
	"recovery_rate":            {0, 1},
	"distraction_resistance":   {0, 1},
	"focus_duration":           {0, 60},
	"collaboration_indicators": {0, 10},
	"leadership_indicators":    {0, 10},
	"event_count":              {0, 200},
}

// LinguisticReferenceStats gives the per-feature reference mean/stdev used
// to z-score linguistic evidence (spec §4.7). They are fixed package-level
// calibration constants: they are not loaded from the model artifacts and
// do not change when a model registry is loaded.
var LinguisticReferenceStats = map[string][2]float64{ // [mean, stdev]
	"empathy_markers":          {5.0, 2.5},
	"problem_solving_language": {4.0, 2.0},
	"perseverance_indicators":  {3.5, 1.8},
	"social_processes":         {0.4, 0.2},
	"cognitive_processes":      {0.4, 0.2},
	"positive_sentiment":       {0.5, 0.25},
	"negative_sentiment":       {0.2, 0.15},
	"avg_sentence_length":      {14.0, 5.0},
	"syntactic_complexity":     {0.5, 0.2},
	"word_count":               {120.0, 60.0},
	"unique_word_count":        {70.0, 35.0},
	"readability_score":        {70.0, 15.0},
	"noun_count":               {25.0, 12.0},
	"verb_count":               {18.0, 9.0},
	"adj_count":                {8.0, 4.0},
	"adv_count":                {6.0, 3.0},
}
