package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFilter() *Filter {
	return New(DefaultThresholds(), nil)
}

func reasonCodes(v Verdict) []string {
	codes := make([]string, len(v.Reasons))
	for i, r := range v.Reasons {
		codes[i] = r.Code
	}
	return codes
}

func TestEvaluate_AbsenceOfEvidencePasses(t *testing.T) {
	f := newTestFilter()

	// No contract type, no salary, no schedule anywhere: must pass.
	v := f.Evaluate(Attributes{
		Title:       "Dependiente de tienda",
		Company:     "Tienda SL",
		Description: "Atención al cliente y reposición.",
	})
	assert.True(t, v.Eligible)
	assert.Empty(t, v.Reasons)
}

func TestEvaluate_TemporalContractRejected(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:        "Cajero/a",
		ContractType: "contrato temporal",
	})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonTemporalContract)
}

func TestEvaluate_TemporalShortCodeExpanded(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{Title: "Mozo de almacén", ContractType: "td"})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonTemporalContract)

	// "ti" expands to indefinido and passes.
	v = f.Evaluate(Attributes{Title: "Mozo de almacén", ContractType: "ti"})
	assert.True(t, v.Eligible)
}

func TestEvaluate_TemporalKeywordInDescription(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:       "Reponedor",
		Description: "Contrato por sustitución de baja maternal.",
	})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonTemporalContract)
}

func TestEvaluate_PartTimeKeywordRejected(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:       "Camarero",
		Description: "Se ofrece media jornada de tardes.",
	})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonPartTime)
}

func TestEvaluate_LowWeeklyHoursRejected(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:       "Limpieza",
		Description: "Jornada de 20 horas semanales.",
	})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonPartTime)
}

func TestEvaluate_FullTimeHoursPass(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:       "Operario",
		Description: "40 horas semanales, turnos rotativos.",
	})
	assert.True(t, v.Eligible)
}

func TestEvaluate_SalaryBelowAnnualFloorRejected(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:     "Auxiliar administrativo",
		SalaryRaw: "14.000 €/año",
	})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonBelowFloor)
}

func TestEvaluate_SalaryBelowMonthlyFloorRejected(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:     "Teleoperador",
		SalaryRaw: "900€/mes",
	})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonBelowFloor)
}

func TestEvaluate_SalaryRangePassesWhenTopMeetsFloor(t *testing.T) {
	f := newTestFilter()

	// One figure in the range meets the floor: not disqualified.
	v := f.Evaluate(Attributes{
		Title:     "Desarrollador",
		SalaryRaw: "1000-1500 €/mes",
	})
	assert.True(t, v.Eligible)
}

func TestEvaluate_SalaryAboveFloorPasses(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:     "Ingeniero",
		SalaryRaw: "28.000 euros anuales",
	})
	assert.True(t, v.Eligible)
}

func TestEvaluate_UnparseableSalaryFailsOpen(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:     "Cocinero",
		SalaryRaw: "salario según convenio",
	})
	assert.True(t, v.Eligible)
}

func TestEvaluate_BlockedCompanyRejected(t *testing.T) {
	f := New(DefaultThresholds(), []string{"Shady Corp"})

	v := f.Evaluate(Attributes{Title: "Cualquiera", Company: "shady corp"})
	require.False(t, v.Eligible)
	assert.Contains(t, reasonCodes(v), ReasonBlockedCompany)
}

func TestEvaluate_MultipleReasonsReported(t *testing.T) {
	f := newTestFilter()

	v := f.Evaluate(Attributes{
		Title:        "Cajero",
		ContractType: "temporal",
		Description:  "media jornada",
		SalaryRaw:    "800 €/mes",
	})
	require.False(t, v.Eligible)
	codes := reasonCodes(v)
	assert.Contains(t, codes, ReasonTemporalContract)
	assert.Contains(t, codes, ReasonPartTime)
	assert.Contains(t, codes, ReasonBelowFloor)
}

func TestEvaluate_Deterministic(t *testing.T) {
	f := newTestFilter()
	attrs := Attributes{Title: "Cajero", ContractType: "temporal"}

	first := f.Evaluate(attrs)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, f.Evaluate(attrs))
	}
}
