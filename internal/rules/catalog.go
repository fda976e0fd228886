package rules

import (
	"github.com/vitalsense/pulsewatch/pkg/models"
)

// Catalog is an immutable snapshot of the rule configuration used for one
// evaluation window. Invalid rules are excluded at load time.
type Catalog struct {
	parameters     map[int64]models.Parameter
	symptoms       []models.Symptom
	symptomsByID   map[int64]models.Symptom
	rulesBySymptom map[int64][]models.Rule
}

// NewCatalog builds a snapshot from already-validated configuration.
// Exposed for tests and for callers that load configuration elsewhere.
func NewCatalog(
	parameters []models.Parameter,
	symptoms []models.Symptom,
	rulesBySymptom map[int64][]models.Rule,
) *Catalog {
	c := &Catalog{
		parameters:     make(map[int64]models.Parameter, len(parameters)),
		symptoms:       symptoms,
		symptomsByID:   make(map[int64]models.Symptom, len(symptoms)),
		rulesBySymptom: rulesBySymptom,
	}

	for _, p := range parameters {
		c.parameters[p.ID] = p
	}
	for _, s := range symptoms {
		c.symptomsByID[s.ID] = s
	}

	return c
}

// Symptoms returns all symptoms with at least one associated rule
func (c *Catalog) Symptoms() []models.Symptom {
	out := make([]models.Symptom, 0, len(c.symptoms))
	for _, s := range c.symptoms {
		if len(c.rulesBySymptom[s.ID]) > 0 {
			out = append(out, s)
		}
	}
	return out
}

// Symptom returns a symptom by id
func (c *Catalog) Symptom(symptomID int64) (models.Symptom, bool) {
	s, ok := c.symptomsByID[symptomID]
	return s, ok
}

// RulesForSymptom returns the validated ruleset of one symptom
func (c *Catalog) RulesForSymptom(symptomID int64) []models.Rule {
	return c.rulesBySymptom[symptomID]
}

// Parameter returns a parameter by id
func (c *Catalog) Parameter(parameterID int64) (models.Parameter, bool) {
	p, ok := c.parameters[parameterID]
	return p, ok
}

// ParameterKey returns the measurement map key of one parameter
func (c *Catalog) ParameterKey(parameterID int64) string {
	return c.parameters[parameterID].Key
}

// Parameters returns all known parameters
func (c *Catalog) Parameters() []models.Parameter {
	out := make([]models.Parameter, 0, len(c.parameters))
	for _, p := range c.parameters {
		out = append(out, p)
	}
	return out
}
