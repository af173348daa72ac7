package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConditionKeyStructuralEquality(t *testing.T) {
	a := &Condition{Expression: "request.time < timestamp('2030-01-01T00:00:00Z')", Title: "expiry", Description: "temp"}
	b := &Condition{Expression: "request.time < timestamp('2030-01-01T00:00:00Z')", Title: "expiry", Description: "temp"}

	// Distinct values, same normalized triple: same grouping key.
	assert.NotSame(t, a, b)
	assert.Equal(t, a.Key(), b.Key())
}

func TestConditionKeyDistinguishesTriples(t *testing.T) {
	base := &Condition{Expression: "expr", Title: "t", Description: "d"}

	assert.NotEqual(t, base.Key(), (&Condition{Expression: "other", Title: "t", Description: "d"}).Key())
	assert.NotEqual(t, base.Key(), (&Condition{Expression: "expr", Title: "other", Description: "d"}).Key())
	assert.NotEqual(t, base.Key(), (&Condition{Expression: "expr", Title: "t", Description: "other"}).Key())
}

func TestConditionKeyNilIsUnconditional(t *testing.T) {
	var absent *Condition

	assert.Equal(t, ConditionKey{}, absent.Key())
	// An unconditional binding never collides with an empty-but-present
	// condition.
	assert.NotEqual(t, absent.Key(), (&Condition{}).Key())
}
