// Package pmc retrieves PubMed Central full text for trials. Papers
// citing a trial's NCT number are found through the eutils API, their
// open-access packages are downloaded and unpacked into the run
// directory, and any methods sections found in the article XML are
// dropped into the cTAKES input directory together with the trial's
// formatted eligibility criteria.
package pmc

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/internal/httpclient"
)

// Finder locates publications for trials and resolves their PubMed
// Central ids.
type Finder struct {
	eutilsBase *url.URL
	oaBase     *url.URL
	http       *httpclient.SaferClient
	logger     *zap.SugaredLogger
}

// NewFinder builds a finder from configuration.
func NewFinder(cfg config.PMCConfig, logger *zap.SugaredLogger) (*Finder, error) {
	eutils, err := url.Parse(cfg.EutilsBaseURL)
	if err != nil || eutils.Scheme == "" || eutils.Host == "" {
		return nil, errors.NewConfigurationError("invalid eutils base URL %q", cfg.EutilsBaseURL)
	}
	oa, err := url.Parse(cfg.OABaseURL)
	if err != nil || oa.Scheme == "" || oa.Host == "" {
		return nil, errors.NewConfigurationError("invalid open-access service URL %q", cfg.OABaseURL)
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 300 * time.Second
	}

	return &Finder{
		eutilsBase: eutils,
		oaBase:     oa,
		http:       httpclient.NewSaferClient(timeout),
		logger:     logger,
	}, nil
}

type eSearchResult struct {
	IDs []string `xml:"IdList>Id"`
}

type pubmedArticleSet struct {
	OtherIDs []otherID `xml:"PubmedArticle>MedlineCitation>OtherID"`
}

type otherID struct {
	Source string `xml:"Source,attr"`
	Value  string `xml:",chardata"`
}

// FindPapers searches PubMed for publications that mention the NCT
// number in their title or abstract.
func (f *Finder) FindPapers(ctx context.Context, nct string) ([]*Paper, error) {
	if nct == "" {
		return nil, errors.NewContentError("an NCT number is needed to find publications")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", "("+nct+"[Title/Abstract])")
	u := f.eutilsBase.JoinPath("esearch.fcgi")
	u.RawQuery = params.Encode()

	var result eSearchResult
	if err := f.getXML(ctx, u.String(), &result); err != nil {
		return nil, err
	}

	papers := make([]*Paper, 0, len(result.IDs))
	for _, pmid := range result.IDs {
		if pmid = strings.TrimSpace(pmid); pmid != "" {
			papers = append(papers, &Paper{NCT: nct, PMID: pmid})
		}
	}
	return papers, nil
}

// FetchPMCIDs resolves the PubMed Central ids for a paper. Papers that
// already carry ids are left alone. A paper without any PMC id has no
// full text to fetch, which is worth a log line but not an error.
func (f *Finder) FetchPMCIDs(ctx context.Context, p *Paper) error {
	if p.PMCIDs != nil {
		return nil
	}
	if p.PMID == "" {
		return errors.NewContentError("paper for %s has no PMID", p.NCT)
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", p.PMID)
	params.Set("retmode", "xml")
	u := f.eutilsBase.JoinPath("efetch.fcgi")
	u.RawQuery = params.Encode()

	var article pubmedArticleSet
	if err := f.getXML(ctx, u.String(), &article); err != nil {
		return err
	}

	pmcids := []string{}
	for _, other := range article.OtherIDs {
		if other.Source == "NLM" {
			if id := strings.TrimSpace(other.Value); id != "" {
				pmcids = append(pmcids, id)
			}
		}
	}
	p.PMCIDs = pmcids

	if len(pmcids) == 0 && f.logger != nil {
		f.logger.Infow("No PMC id found despite a PMID", "nct", p.NCT, "pmid", p.PMID)
	}
	return nil
}

func (f *Finder) getXML(ctx context.Context, fetchURL string, into any) error {
	if f.logger != nil {
		f.logger.Debugw("Fetching", "url", fetchURL)
	}
	resp, err := f.http.GetContext(ctx, fetchURL)
	if err != nil {
		return errors.Wrapf(err, "request %s", fetchURL)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Newf("%s returned %s: %s", fetchURL, resp.Status, strings.TrimSpace(string(body)))
	}
	if err := xml.NewDecoder(resp.Body).Decode(into); err != nil {
		return errors.Wrapf(err, "cannot parse response from %s", fetchURL)
	}
	return nil
}
