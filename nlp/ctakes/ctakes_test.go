package ctakes

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/codify/nlp"
)

const sampleXMI = `<?xml version="1.0" encoding="UTF-8"?>
<xmi:XMI xmlns:xmi="http://www.omg.org/XMI"
         xmlns:refsem="http:///org/apache/ctakes/typesystem/type/refsem.ecore"
         xmlns:textsem="http:///org/apache/ctakes/typesystem/type/textsem.ecore"
         xmi:version="2.0">
  <refsem:UmlsConcept xmi:id="66" cui="C0032961" tui="T033" codingScheme="SNOMED" code="77386006"/>
  <refsem:UmlsConcept xmi:id="72" cui="C0011849" tui="T047" codingScheme="SNOMED" code="73211009"/>
  <refsem:UmlsConcept xmi:id="80" cui="C0027497" tui="T184" codingScheme="RXNORM" code="998"/>
  <refsem:UmlsConcept xmi:id="85" cui="C0011849" tui="T047" codingScheme="SNOMED" code="73211009"/>
  <textsem:DiseaseDisorderMention xmi:id="901" begin="0" end="8" polarity="-1" ontologyConceptArr="66"/>
  <textsem:SignSymptomMention xmi:id="902" begin="10" end="18" polarity="1" ontologyConceptArr="72 80"/>
</xmi:XMI>`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := New("ctakes", t.TempDir(), nil, false)
	require.NoError(t, e.Prepare())
	return e
}

func TestParseOutput(t *testing.T) {
	e := newTestEngine(t)

	out := filepath.Join(e.OutputDir(), "unit1.txt.xmi")
	require.NoError(t, os.WriteFile(out, []byte(sampleXMI), 0o644))

	cs, err := e.ParseOutput("unit1.txt", nlp.ParseOptions{FilterSources: true})
	require.NoError(t, err)
	require.NotNil(t, cs)

	// The pregnancy concept is referenced by a negated mention; the
	// duplicate diabetes concept collapses to one entry.
	assert.Equal(t, []string{"-77386006", "73211009"}, cs.Values(nlp.SystemSnomed))
	assert.Equal(t, []string{"-C0032961", "C0011849", "C0027497"}, cs.Values(nlp.SystemCUI))

	// No cleanup configured: the output file stays put.
	assert.FileExists(t, out)
}

func TestParseOutputPending(t *testing.T) {
	e := newTestEngine(t)

	cs, err := e.ParseOutput("unit1.txt", nlp.ParseOptions{})
	require.NoError(t, err)
	assert.Nil(t, cs, "missing output means still pending")
}

func TestParseOutputMalformed(t *testing.T) {
	e := newTestEngine(t)

	out := filepath.Join(e.OutputDir(), "unit1.txt.xmi")
	require.NoError(t, os.WriteFile(out, []byte("<xmi:XMI><unclosed"), 0o644))

	cs, err := e.ParseOutput("unit1.txt", nlp.ParseOptions{})
	require.NoError(t, err)
	assert.Nil(t, cs, "malformed output is treated as not yet available")
}

func TestParseOutputEmptyAnnotations(t *testing.T) {
	e := newTestEngine(t)

	empty := `<?xml version="1.0"?><xmi:XMI xmlns:xmi="http://www.omg.org/XMI"></xmi:XMI>`
	out := filepath.Join(e.OutputDir(), "unit1.txt.xmi")
	require.NoError(t, os.WriteFile(out, []byte(empty), 0o644))

	cs, err := e.ParseOutput("unit1.txt", nlp.ParseOptions{})
	require.NoError(t, err)
	require.NotNil(t, cs, "an attempt with no codes is still an attempt")
	assert.True(t, cs.Empty())
}

func TestParseOutputCleanup(t *testing.T) {
	e := New("ctakes", t.TempDir(), nil, true)
	require.NoError(t, e.Prepare())

	wrote, err := e.WriteInput("pregnant", "unit1.txt")
	require.NoError(t, err)
	require.True(t, wrote)

	out := filepath.Join(e.OutputDir(), "unit1.txt.xmi")
	require.NoError(t, os.WriteFile(out, []byte(sampleXMI), 0o644))

	cs, err := e.ParseOutput("unit1.txt", nlp.ParseOptions{})
	require.NoError(t, err)
	require.NotNil(t, cs)

	assert.NoFileExists(t, out)
	assert.NoFileExists(t, filepath.Join(e.InputDir(), "unit1.txt"))
}
