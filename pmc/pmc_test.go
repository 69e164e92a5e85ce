package pmc

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/internal/httpclient"
	"github.com/trialkit/codify/trial"
)

const articleWithMethods = `<?xml version="1.0"?>
<article>
  <front><article-meta></article-meta></front>
  <body>
    <sec sec-type="intro"><title>Background</title><p>Context only.</p></sec>
    <sec sec-type="materials|methods"><title>Methods</title><p>Patients were randomized to receive chemotherapy.</p></sec>
  </body>
  <back></back>
</article>`

const articleWithoutMethods = `<?xml version="1.0"?>
<article>
  <body>
    <sec sec-type="discussion"><p>Nothing to extract.</p></sec>
  </body>
</article>`

func newTestFinder(t *testing.T, handler http.Handler) (*Finder, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	f, err := NewFinder(config.PMCConfig{
		EutilsBaseURL:  srv.URL + "/entrez/eutils",
		OABaseURL:      srv.URL + "/utils/oa/oa.fcgi",
		TimeoutSeconds: 5,
	}, nil)
	require.NoError(t, err)
	f.http = httpclient.WrapClient(srv.Client())
	return f, srv
}

// makeTGZ builds a gzipped tarball from path to content mappings.
func makeTGZ(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFindPapers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/entrez/eutils/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "pubmed", q.Get("db"))
		assert.Equal(t, "(NCT01299818[Title/Abstract])", q.Get("term"))
		fmt.Fprint(w, `<eSearchResult><Count>2</Count><IdList><Id>22563743</Id><Id>19997842</Id></IdList></eSearchResult>`)
	})

	f, _ := newTestFinder(t, mux)
	papers, err := f.FindPapers(context.Background(), "NCT01299818")
	require.NoError(t, err)
	require.Len(t, papers, 2)
	assert.Equal(t, "22563743", papers[0].PMID)
	assert.Equal(t, "NCT01299818", papers[0].NCT)
	assert.Equal(t, "19997842", papers[1].PMID)
}

func TestFindPapersNeedsNCT(t *testing.T) {
	f, _ := newTestFinder(t, http.NotFoundHandler())
	_, err := f.FindPapers(context.Background(), "")
	require.Error(t, err)
	assert.True(t, errors.IsContentError(err))
}

func TestFetchPMCIDs(t *testing.T) {
	hits := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/entrez/eutils/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		hits++
		assert.Equal(t, "22563743", r.URL.Query().Get("id"))
		fmt.Fprint(w, `<PubmedArticleSet><PubmedArticle><MedlineCitation>
			<OtherID Source="NLM">PMC3366494</OtherID>
			<OtherID Source="KIE">ignored</OtherID>
		</MedlineCitation></PubmedArticle></PubmedArticleSet>`)
	})

	f, _ := newTestFinder(t, mux)
	p := &Paper{NCT: "NCT01299818", PMID: "22563743"}
	require.NoError(t, f.FetchPMCIDs(context.Background(), p))
	assert.Equal(t, []string{"PMC3366494"}, p.PMCIDs)

	// Already resolved papers are not fetched again.
	require.NoError(t, f.FetchPMCIDs(context.Background(), p))
	assert.Equal(t, 1, hits)
}

func TestFetchPMCIDsNone(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/entrez/eutils/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<PubmedArticleSet><PubmedArticle><MedlineCitation></MedlineCitation></PubmedArticle></PubmedArticleSet>`)
	})

	f, _ := newTestFinder(t, mux)
	p := &Paper{NCT: "NCT01299818", PMID: "22563743"}
	require.NoError(t, f.FetchPMCIDs(context.Background(), p))
	require.NotNil(t, p.PMCIDs)
	assert.Empty(t, p.PMCIDs)
}

func TestDownloadAndParsePackages(t *testing.T) {
	tgz := makeTGZ(t, map[string]string{
		"PMC3366494/article.nxml": articleWithMethods,
		"PMC3366494/license.txt":  "CC-BY",
	})

	oaHits := 0
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/utils/oa/oa.fcgi", func(w http.ResponseWriter, r *http.Request) {
		oaHits++
		assert.Equal(t, "PMC3366494", r.URL.Query().Get("id"))
		fmt.Fprintf(w, `<OA><records returned-count="1"><record id="PMC3366494">
			<link format="pdf" href="%s/packages/ignored.pdf"></link>
			<link format="tgz" href="%s/packages/PMC3366494.tgz"></link>
		</record></records></OA>`, server.URL, server.URL)
	})
	mux.HandleFunc("/packages/PMC3366494.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tgz)
	})

	f, srv := newTestFinder(t, mux)
	server = srv

	runDir := t.TempDir()
	ctakesDir := t.TempDir()
	p := &Paper{NCT: "NCT01299818", PMID: "22563743", PMCIDs: []string{"PMC3366494"}}

	require.NoError(t, f.DownloadPackages(context.Background(), p, runDir))
	_, err := os.Stat(filepath.Join(runDir, "NCT01299818-22563743-PMC3366494", "PMC3366494", "article.nxml"))
	require.NoError(t, err)

	// A second download pass sees the unpacked directory and skips the
	// open-access service entirely.
	require.NoError(t, f.DownloadPackages(context.Background(), p, runDir))
	assert.Equal(t, 1, oaHits)

	require.NoError(t, f.ParsePackages(p, runDir, ctakesDir))
	assert.True(t, p.HasMethods())

	methods, err := os.ReadFile(filepath.Join(ctakesDir, "NCT01299818-22563743-PMC3366494.xml"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(methods), "<root>"))
	assert.Contains(t, string(methods), "Patients were randomized")
	assert.NotContains(t, string(methods), "Context only")
}

func TestParsePackagesWithoutMethods(t *testing.T) {
	runDir := t.TempDir()
	ctakesDir := t.TempDir()
	p := &Paper{NCT: "NCT01299818", PMID: "22563743", PMCIDs: []string{"PMC99"}}

	pkgDir := filepath.Join(runDir, p.PackageDir("PMC99"))
	require.NoError(t, os.MkdirAll(pkgDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(pkgDir, "article.nxml"), []byte(articleWithoutMethods), 0644))

	f, _ := newTestFinder(t, http.NotFoundHandler())
	require.NoError(t, f.ParsePackages(p, runDir, ctakesDir))
	assert.False(t, p.HasMethods())

	entries, err := os.ReadDir(ctakesDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestExtractMethodsSections(t *testing.T) {
	sections, err := extractMethodsSections(strings.NewReader(articleWithMethods))
	require.NoError(t, err)
	require.Len(t, sections, 1)
	assert.Contains(t, sections[0], "sec-type=\"materials|methods\"")
	assert.Contains(t, sections[0], "Patients were randomized to receive chemotherapy.")

	sections, err = extractMethodsSections(strings.NewReader(articleWithoutMethods))
	require.NoError(t, err)
	assert.Empty(t, sections)

	// Sections outside the body never count, even with a methods type.
	outside := `<article><front><sec sec-type="methods"><p>front matter</p></sec></front><body></body></article>`
	sections, err = extractMethodsSections(strings.NewReader(outside))
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestProcessFlagsTrial(t *testing.T) {
	tgz := makeTGZ(t, map[string]string{
		"PMC3366494/article.nxml": articleWithMethods,
	})

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/entrez/eutils/esearch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<eSearchResult><IdList><Id>22563743</Id></IdList></eSearchResult>`)
	})
	mux.HandleFunc("/entrez/eutils/efetch.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<PubmedArticleSet><PubmedArticle><MedlineCitation>
			<OtherID Source="NLM">PMC3366494</OtherID>
		</MedlineCitation></PubmedArticle></PubmedArticleSet>`)
	})
	mux.HandleFunc("/utils/oa/oa.fcgi", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<OA><records><record><link format="tgz" href="%s/packages/PMC3366494.tgz"></link></record></records></OA>`, server.URL)
	})
	mux.HandleFunc("/packages/PMC3366494.tgz", func(w http.ResponseWriter, r *http.Request) {
		w.Write(tgz)
	})

	f, srv := newTestFinder(t, mux)
	server = srv

	tr, err := trial.Decode([]byte(`{
		"id": "NCT01299818",
		"eligibility": {
			"gender": "Both",
			"minimum_age": "18 Years",
			"healthy_volunteers": "No",
			"criteria": {"textblock": "Inclusion Criteria:\n\n- Age > 18"}
		}
	}`))
	require.NoError(t, err)

	runDir := t.TempDir()
	ctakesDir := t.TempDir()
	submitted, err := f.Process(context.Background(), tr, runDir, ctakesDir)
	require.NoError(t, err)
	assert.True(t, submitted)
	assert.True(t, tr.WaitingForCTakesPMC)

	criteria, err := os.ReadFile(filepath.Join(ctakesDir, "NCT01299818-22563743-CT.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(criteria), "Inclusion Criteria")

	_, err = os.Stat(filepath.Join(ctakesDir, "NCT01299818-22563743-PMC3366494.xml"))
	require.NoError(t, err)
}

func TestNewFinderValidatesURLs(t *testing.T) {
	_, err := NewFinder(config.PMCConfig{EutilsBaseURL: "", OABaseURL: "http://x.org/oa.fcgi"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))

	_, err = NewFinder(config.PMCConfig{EutilsBaseURL: "http://x.org/eutils", OABaseURL: ""}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsConfigurationError(err))
}
