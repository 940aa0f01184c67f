package models

// StagedProject is a raw/partial project record extracted by a workflow
// (§3). Two or more partial records may exist for the same URL; the
// transform stage reconciles them.
type StagedProject struct {
	ID                  string   `json:"id,omitempty"`
	TaskID              string   `json:"task_id"`
	Source              string   `json:"source"`
	Number              string   `json:"number,omitempty"`
	Name                string   `json:"name,omitempty"`
	Status              string   `json:"status,omitempty"`
	ApprovedDate        string   `json:"approved_date,omitempty"`
	SignedDate          string   `json:"signed_date,omitempty"`
	EffectiveDate       string   `json:"effective_date,omitempty"`
	DisclosedDate       string   `json:"disclosed_date,omitempty"`
	PlannedCloseDate    string   `json:"planned_close_date,omitempty"`
	ActualCloseDate     string   `json:"actual_close_date,omitempty"`
	UnderAppraisalDate  string   `json:"under_appraisal_date,omitempty"`
	LastUpdatedDate     string   `json:"last_updated_date,omitempty"`
	FinanceTypes        string   `json:"finance_types,omitempty"`
	Sectors             string   `json:"sectors,omitempty"`
	Countries           string   `json:"countries,omitempty"`
	Affiliates          string   `json:"affiliates,omitempty"`
	TotalAmount          *float64 `json:"total_amount,omitempty"`
	TotalAmountCurrency string   `json:"total_amount_currency,omitempty"`
	TotalAmountUSD      *float64 `json:"total_amount_usd,omitempty"`
	URL                 string   `json:"url"`
}

// StagedInvestment is the per-(form,cusip,manager) investment row produced
// by the regulatory-filing scrape before stock-metadata enrichment and
// upsert (§4.6, supplemented from original_source since spec.md names the
// storage operations but not the row shape).
type StagedInvestment struct {
	ID            string   `json:"id,omitempty"`
	TaskID        string   `json:"task_id"`
	CompanyCIK    string   `json:"company_cik"`
	CompanyName   string   `json:"company_name,omitempty"`
	FormName      string   `json:"form_name,omitempty"`
	FilingAccNo   string   `json:"filing_acc_no"`
	FormFiledAt   string   `json:"form_filed_at,omitempty"`
	CUSIP         string   `json:"cusip"`
	Manager       string   `json:"manager,omitempty"`
	Shares        *float64 `json:"shares,omitempty"`
	Value         *float64 `json:"value,omitempty"`
	MarketSector  string   `json:"market_sector,omitempty"`
	Ticker        string   `json:"ticker,omitempty"`
	Exchange      string   `json:"exchange,omitempty"`
	SecurityType  string   `json:"security_type,omitempty"`
}

// CanonicalProject is the normalized, deduplicated project record owned by
// the transform stage (§3). Uniqueness key: (Source, URL).
type CanonicalProject struct {
	ID                  string   `json:"id,omitempty"`
	Source              string   `json:"source"`
	BankID              string   `json:"bank_id,omitempty"`
	Number              string   `json:"number,omitempty"`
	Name                string   `json:"name,omitempty"`
	Status              string   `json:"status"`
	Countries           string   `json:"countries"`
	Sectors             string   `json:"sectors"`
	TotalAmountUSD      *float64 `json:"total_amount_usd,omitempty"`
	NormalizedAmount    *float64 `json:"normalized_amount,omitempty"`
	URL                 string   `json:"url"`
}

// ProjectCountryAssociation and ProjectSectorAssociation are the
// many-to-many association rows built by exploding CanonicalProject's
// comma-joined Countries/Sectors fields (§4.6 step 9).
type ProjectCountryAssociation struct {
	ProjectID string `json:"project_id"`
	CountryID string `json:"country_id"`
}

type ProjectSectorAssociation struct {
	ProjectID string `json:"project_id"`
	SectorID  string `json:"sector_id"`
}

// Company and Form are the two canonical regulatory-filing upsert targets
// that precede investment rows (§4.6 "Regulatory-filing transform" steps 1-2).
type Company struct {
	ID   string `json:"id,omitempty"`
	CIK  string `json:"cik"`
	Name string `json:"name"`
}

type Form struct {
	ID          string `json:"id,omitempty"`
	CompanyID   string `json:"company_id,omitempty"`
	CIK         string `json:"cik"`
	AccessionNo string `json:"accession_no"`
	FiledAt     string `json:"filed_at,omitempty"`
}

// Investment is the canonical, enriched form of a StagedInvestment after
// upsert. Deduplicated by (FormID, CUSIP, Manager) (§4.6 step 4).
type Investment struct {
	ID           string   `json:"id,omitempty"`
	FormID       string   `json:"form_id"`
	CUSIP        string   `json:"cusip"`
	Manager      string   `json:"manager,omitempty"`
	Shares       *float64 `json:"shares,omitempty"`
	Value        *float64 `json:"value,omitempty"`
	MarketSector string   `json:"market_sector,omitempty"`
	Ticker       string   `json:"ticker,omitempty"`
	Exchange     string   `json:"exchange,omitempty"`
	SecurityType string   `json:"security_type,omitempty"`
}

// Bank, Country, and Sector are externally-owned reference records consumed
// read-only by the transform stage (§3).
type Bank struct {
	ID           string `json:"id"`
	Abbreviation string `json:"abbreviation"`
	Name         string `json:"name,omitempty"`
}

type Country struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	ISOCode string `json:"iso_code,omitempty"`
}

type Sector struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
