package forms

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"

	"github.com/ternarybob/quaero-pipeline/internal/common"
	"github.com/ternarybob/quaero-pipeline/internal/interfaces"
	"github.com/ternarybob/quaero-pipeline/internal/models"
	"github.com/ternarybob/quaero-pipeline/internal/registry"
	"github.com/ternarybob/quaero-pipeline/internal/workflows"
)

type nopStorage struct{ interfaces.StorageGateway }
type nopBus struct{ interfaces.Bus }

func testDeps() workflows.Deps {
	return workflows.Deps{Storage: &nopStorage{}, Bus: &nopBus{}, Logger: common.GetLogger()}
}

func TestRegistryHasAllForm13FWorkflowTypesWired(t *testing.T) {
	workflowTypes := []string{
		models.WorkflowSeedURLs,
		models.WorkflowFilingHistory,
		models.WorkflowFilingArchive,
		models.WorkflowFilingScrape,
	}

	for _, wf := range workflowTypes {
		if _, err := registry.Build(registry.FORM13F, wf, testDeps()); err != nil {
			t.Errorf("Build(%q, %q) failed: %v", registry.FORM13F, wf, err)
		}
	}
}

func newHistory(cik string, forms, accessionNumbers, filingDates []string, files []string) submissionsHistory {
	var h submissionsHistory
	h.CIK = cik
	h.Filings.Recent.Form = forms
	h.Filings.Recent.AccessionNumber = accessionNumbers
	h.Filings.Recent.FilingDate = filingDates
	for _, name := range files {
		h.Filings.Files = append(h.Filings.Files, struct {
			Name string `json:"name"`
		}{Name: name})
	}
	return h
}

func TestParseSubmissionsHistoryQueuesRecentAndArchivedFilings(t *testing.T) {
	h := newHistory("0001067983",
		[]string{"13F-HR", "10-K"},
		[]string{"0001067983-24-000123", "0001067983-24-000050"},
		[]string{"2024-02-14", "2024-03-01"},
		[]string{"0001067983-24-index.json"},
	)

	tasks := parseSubmissionsHistory(h)

	var scrapeTasks, archiveTasks int
	for _, task := range tasks {
		switch task.WorkflowType {
		case models.WorkflowFilingScrape:
			scrapeTasks++
			if !strings.Contains(task.URL, "000123") {
				t.Errorf("unexpected filing-scrape URL: %q", task.URL)
			}
		case models.WorkflowFilingArchive:
			archiveTasks++
			if !strings.Contains(task.URL, "0001067983-24-index.json") {
				t.Errorf("unexpected filing-archive URL: %q", task.URL)
			}
		default:
			t.Errorf("unexpected workflow_type %q on task %q", task.WorkflowType, task.URL)
		}
	}

	if scrapeTasks != 1 {
		t.Errorf("expected exactly 1 filing-scrape task (10-K must be filtered out), got %d", scrapeTasks)
	}
	if archiveTasks != 1 {
		t.Errorf("expected 1 filing-archive task, got %d", archiveTasks)
	}
}

func TestParseSubmissionsHistoryOldFormatSuppressesAllArchivedFilings(t *testing.T) {
	h := newHistory("0001067983",
		[]string{"13F-HR", "13F-HR"},
		[]string{"0001067983-12-000010", "0001067983-24-000123"},
		[]string{"2012-02-14", "2024-02-14"},
		[]string{"0001067983-12-index.json", "0001067983-24-index.json"},
	)

	tasks := parseSubmissionsHistory(h)

	for _, task := range tasks {
		if task.WorkflowType == models.WorkflowFilingArchive {
			t.Fatalf("expected no filing-archive tasks once an old-format recent filing is seen, got %q", task.URL)
		}
	}

	var scrapeTasks int
	for _, task := range tasks {
		if task.WorkflowType == models.WorkflowFilingScrape {
			scrapeTasks++
		}
	}
	if scrapeTasks != 1 {
		t.Errorf("expected the 2012 filing to be skipped and only the 2024 filing queued, got %d filing-scrape tasks", scrapeTasks)
	}
}

func TestParseFilingURLExtractsCIKAndAccessionNumber(t *testing.T) {
	url := "https://www.sec.gov/Archives/edgar/data/1067983/000106798324000123/0001067983-24-000123-index.htm"

	cik, accNo, err := parseFilingURL(url)
	if err != nil {
		t.Fatalf("parseFilingURL: %v", err)
	}
	if cik != "0001067983" {
		t.Errorf("cik = %q, want zero-padded to 10 digits", cik)
	}
	if accNo != "0001067983-24-000123" {
		t.Errorf("accNo = %q", accNo)
	}
}

func TestCIKFromArchiveURLPatternMatchesSubmissionsFile(t *testing.T) {
	url := "https://data.sec.gov/submissions/CIK0001067983-submissions-001.json"
	if cikFromArchiveURLPattern.FindStringSubmatch(url) == nil {
		t.Fatalf("fixture URL must match cikFromArchiveURLPattern")
	}
}

const formHomePageFixture = `
<html><body>
<span class="companyName">Acme Capital Management LLC (Filer)</span>
<div id="formDiv">
<strong>FORM 13F-HR</strong>
<div class="infoHead">Filing Date</div>
<div>2024-02-14</div>
<div class="infoHead">Period of Report</div>
<div>2023-12-31</div>
</div>
</body></html>`

func TestParseFormHomePageDocExtractsCoverPageMetadata(t *testing.T) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(formHomePageFixture))
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}

	metadata := parseFormHomePageDoc(doc)

	if metadata.companyName != "Acme Capital Management LLC" {
		t.Errorf("companyName = %q, want the \"(Filer)\" suffix stripped", metadata.companyName)
	}
	if metadata.formName != "FORM 13F-HR" {
		t.Errorf("formName = %q", metadata.formName)
	}
	if metadata.filedAt != "2024-02-14" {
		t.Errorf("filedAt = %q, want 2024-02-14", metadata.filedAt)
	}
}

func TestParseDigitsStripsCommasAndDecimals(t *testing.T) {
	cases := map[string]float64{
		" 1,234.56 ": 123456,
		"0":          0,
	}
	for raw, want := range cases {
		got := parseDigits(raw)
		if got == nil || *got != want {
			t.Errorf("parseDigits(%q) = %v, want %v", raw, got, want)
		}
	}

	if got := parseDigits("  "); got != nil {
		t.Errorf("parseDigits(blank) = %v, want nil", got)
	}
}

func TestReplaceNullCellBlanksOutNullAndWhitespace(t *testing.T) {
	if got := replaceNullCell(" "); got != "" {
		t.Errorf("replaceNullCell(nbsp) = %q, want empty", got)
	}
	if got := replaceNullCell("  "); got != "" {
		t.Errorf("replaceNullCell(blank) = %q, want empty", got)
	}
	if got := replaceNullCell(" SOLE "); got != "SOLE" {
		t.Errorf("replaceNullCell(%q) = %q, want trimmed", " SOLE ", got)
	}
}
