package pmc

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	getter "github.com/hashicorp/go-getter"

	"github.com/trialkit/codify/config"
	"github.com/trialkit/codify/errors"
	"github.com/trialkit/codify/trial"
)

type oaResult struct {
	Links []oaLink `xml:"records>record>link"`
}

type oaLink struct {
	Format string `xml:"format,attr"`
	Href   string `xml:"href,attr"`
}

// DownloadPackages fetches and unpacks the open-access package for each
// of the paper's PMC ids into the run directory. Packages that were
// already unpacked are left alone, so an interrupted run resumes where
// it stopped.
func (f *Finder) DownloadPackages(ctx context.Context, p *Paper, runDir string) error {
	if len(p.PMCIDs) == 0 {
		return nil
	}
	if _, err := os.Stat(runDir); err != nil {
		return errors.NewConfigurationError("the run directory %s does not exist", runDir)
	}

	for _, pmcid := range p.PMCIDs {
		dst := filepath.Join(runDir, p.PackageDir(pmcid))
		if _, err := os.Stat(dst); err == nil {
			continue
		}

		link, err := f.packageLink(ctx, pmcid)
		if err != nil {
			return err
		}
		if link == "" {
			if f.logger != nil {
				f.logger.Infow("No package archive offered", "nct", p.NCT, "pmcid", pmcid)
			}
			continue
		}

		if f.logger != nil {
			f.logger.Infow("Downloading package", "nct", p.NCT, "pmcid", pmcid, "url", link)
		}
		client := &getter.Client{
			Ctx:     ctx,
			Src:     link,
			Dst:     dst,
			Mode:    getter.ClientModeDir,
			Getters: getter.Getters,
		}
		if err := client.Get(); err != nil {
			return errors.Wrapf(err, "cannot fetch package %s", pmcid)
		}
	}
	return nil
}

// packageLink asks the open-access service for the archive URL of one
// PMC package.
func (f *Finder) packageLink(ctx context.Context, pmcid string) (string, error) {
	params := url.Values{}
	params.Set("id", pmcid)
	u := *f.oaBase
	u.RawQuery = params.Encode()

	var result oaResult
	if err := f.getXML(ctx, u.String(), &result); err != nil {
		return "", err
	}

	var links []string
	for _, l := range result.Links {
		if l.Format == "tgz" && l.Href != "" {
			links = append(links, l.Href)
		}
	}
	if len(links) == 0 {
		return "", nil
	}
	if len(links) > 1 && f.logger != nil {
		f.logger.Warnw("More than one archive offered, taking the first",
			"pmcid", pmcid, "count", len(links))
	}
	return links[0], nil
}

// ParsePackages looks for unpacked packages in the run directory and
// extracts the methods sections of their article XML into the cTAKES
// input directory. Packages whose methods were already extracted are
// skipped.
func (f *Finder) ParsePackages(p *Paper, runDir, ctakesInDir string) error {
	if len(p.PMCIDs) == 0 {
		return nil
	}
	if _, err := os.Stat(runDir); err != nil {
		return errors.NewConfigurationError("the run directory %s does not exist", runDir)
	}

	for _, pmcid := range p.PMCIDs {
		pkgDir := filepath.Join(runDir, p.PackageDir(pmcid))
		if _, err := os.Stat(pkgDir); err != nil {
			continue
		}
		methodsPath := filepath.Join(ctakesInDir, p.MethodsName(pmcid))
		if _, err := os.Stat(methodsPath); err == nil {
			continue
		}

		var methods []string
		walkErr := filepath.WalkDir(pkgDir, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".nxml") {
				return nil
			}
			file, err := os.Open(path)
			if err != nil {
				return err
			}
			defer file.Close()

			sections, err := extractMethodsSections(file)
			if err != nil {
				if f.logger != nil {
					f.logger.Debugw("Cannot parse article XML", "path", path, "error", err)
				}
				return nil
			}
			methods = append(methods, sections...)
			return nil
		})
		if walkErr != nil {
			return errors.Wrapf(walkErr, "cannot scan package %s", pkgDir)
		}

		p.methods = append(p.methods, methods...)
		if len(methods) == 0 {
			if f.logger != nil {
				f.logger.Infow("No methods section found in package", "nct", p.NCT, "pmcid", pmcid)
			}
			continue
		}

		content := "<root>" + strings.Join(methods, "\n") + "</root>\n"
		if err := os.WriteFile(methodsPath, []byte(content), config.DefaultFilePermissions); err != nil {
			return errors.Wrapf(err, "cannot write methods for %s", pmcid)
		}
	}
	return nil
}

// extractMethodsSections pulls every <sec> under <body> whose sec-type
// mentions methods out of an article, re-serialized as standalone XML
// fragments.
func extractMethodsSections(r io.Reader) ([]string, error) {
	dec := xml.NewDecoder(r)
	var sections []string
	bodyDepth := 0

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			if el.Name.Local == "body" {
				bodyDepth++
				continue
			}
			if bodyDepth > 0 && el.Name.Local == "sec" && strings.Contains(attrValue(el, "sec-type"), "methods") {
				raw, err := captureElement(dec, el)
				if err != nil {
					return nil, err
				}
				sections = append(sections, raw)
			}
		case xml.EndElement:
			if el.Name.Local == "body" && bodyDepth > 0 {
				bodyDepth--
			}
		}
	}
	return sections, nil
}

func attrValue(el xml.StartElement, name string) string {
	for _, a := range el.Attr {
		if a.Name.Local == name {
			return a.Value
		}
	}
	return ""
}

// captureElement re-serializes the element opened by start, consuming
// the decoder up to and including its end tag.
func captureElement(dec *xml.Decoder, start xml.StartElement) (string, error) {
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)
	if err := enc.EncodeToken(start); err != nil {
		return "", err
	}

	depth := 1
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
		}
		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}
		if err := enc.EncodeToken(tok); err != nil {
			return "", err
		}
	}
	if err := enc.Flush(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Process runs the whole retrieval for one trial: find papers citing
// it, resolve their PMC ids, download and parse the packages, and drop
// the trial's formatted eligibility next to any methods text so cTAKES
// codifies both. The trial is flagged as waiting for cTAKES when
// anything was submitted. Failures on individual papers are logged and
// skipped; publications are enrichment, not a reason to fail a run.
func (f *Finder) Process(ctx context.Context, t *trial.Trial, runDir, ctakesInDir string) (bool, error) {
	papers, err := f.FindPapers(ctx, t.NCT)
	if err != nil {
		return false, err
	}

	submitted := false
	for _, paper := range papers {
		if err := ctx.Err(); err != nil {
			return submitted, errors.Wrap(err, "publication retrieval interrupted")
		}
		if err := f.FetchPMCIDs(ctx, paper); err != nil {
			f.warn("Cannot resolve PMC ids", paper, err)
			continue
		}
		if err := f.DownloadPackages(ctx, paper, runDir); err != nil {
			f.warn("Cannot download packages", paper, err)
			continue
		}
		if err := f.ParsePackages(paper, runDir, ctakesInDir); err != nil {
			f.warn("Cannot parse packages", paper, err)
			continue
		}

		if paper.HasMethods() {
			criteriaPath := filepath.Join(ctakesInDir, paper.CriteriaName())
			if err := os.WriteFile(criteriaPath, []byte(t.FormattedEligibility()), config.DefaultFilePermissions); err != nil {
				f.warn("Cannot write criteria next to methods", paper, err)
				continue
			}
			submitted = true
		}
	}

	if submitted {
		t.WaitingForCTakesPMC = true
	}
	return submitted, nil
}

func (f *Finder) warn(msg string, p *Paper, err error) {
	if f.logger != nil {
		f.logger.Warnw(msg, "nct", p.NCT, "pmid", p.PMID, "error", err)
	}
}
