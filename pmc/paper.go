package pmc

import "fmt"

// Paper is one PubMed publication related to a trial, keyed by PMID.
// Its PubMed Central ids are resolved lazily; only PMC-indexed papers
// have full text to fetch.
type Paper struct {
	NCT    string   `json:"nct"`
	PMID   string   `json:"pmid"`
	PMCIDs []string `json:"pmcids,omitempty"`

	methods []string
}

// PackageDir is the directory one open-access package is unpacked into,
// relative to the run directory.
func (p *Paper) PackageDir(pmcid string) string {
	return fmt.Sprintf("%s-%s-%s", p.NCT, p.PMID, pmcid)
}

// MethodsName is the cTAKES input filename for the methods text
// extracted from one package.
func (p *Paper) MethodsName(pmcid string) string {
	return fmt.Sprintf("%s-%s-%s.xml", p.NCT, p.PMID, pmcid)
}

// CriteriaName is the cTAKES input filename for the trial's formatted
// eligibility criteria, dropped alongside the methods text so the
// engine sees both.
func (p *Paper) CriteriaName() string {
	return fmt.Sprintf("%s-%s-CT.txt", p.NCT, p.PMID)
}

// HasMethods reports whether parsing found any methods sections.
func (p *Paper) HasMethods() bool {
	return len(p.methods) > 0
}
