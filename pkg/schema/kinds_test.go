package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindMapping_RoundTrip(t *testing.T) {
	for _, rk := range RuleNameKinds {
		if rk == RuleKindUnknown {
			continue
		}
		ck := CtlKindFromRule(rk)
		assert.NotEqual(t, CtlUnknown, ck, "rule kind %s", rk)
		assert.Equal(t, rk, RuleFromCtlKind(ck))
	}
}

func TestKindMapping_FallsBackToUnknown(t *testing.T) {
	assert.Equal(t, CtlUnknown, CtlKindFromRule(RuleKindUnknown))
	assert.Equal(t, CtlUnknown, CtlKindFromRule("cell_data_type_bogus"))
	assert.Equal(t, RuleKindUnknown, RuleFromCtlKind(CtlSimple))
	assert.Equal(t, RuleKindUnknown, RuleFromCtlKind(CtlUnknown))
	assert.Equal(t, RuleKindUnknown, RuleFromCtlKind(CtlKind(99)))
}

func TestCtlKind_Keys(t *testing.T) {
	assert.Equal(t, "integer", CtlInteger.Key())
	assert.Equal(t, 4, CtlInteger.ID())
	assert.Equal(t, CtlDataFrame, ParseCtlKind("data_frame"))
	assert.Equal(t, CtlUnknown, ParseCtlKind("nope"))
	assert.Equal(t, "unknown", CtlKind(99).Key())
}

func TestParseRuleNameKind(t *testing.T) {
	assert.Equal(t, RuleKindFloat, ParseRuleNameKind("cell_data_type_float"))
	assert.Equal(t, RuleKindUnknown, ParseRuleNameKind("float"))
}
