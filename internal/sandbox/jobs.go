package sandbox

import (
	"bytes"
	"fmt"
	"hash/fnv"
	"io"
	"math"
	"net/http"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/sells-group/leadgen-cli/internal/csvtable"
	"github.com/sells-group/leadgen-cli/internal/model"
)

// FailKeyword as a business type makes the extraction job fail.
const FailKeyword = "fail"

type job struct {
	model.Job
	steps  int
	polls  int
	result []byte
	failAt string
}

// advance moves the job one step forward.
func (j *job) advance(s *Server) {
	if j.Status.IsTerminal() {
		return
	}
	if j.Status == model.JobStatusPending {
		j.Status = model.JobStatusProcessing
		return
	}
	if j.failAt != "" {
		j.Status = model.JobStatusFailed
		j.Error = model.StringPtr(j.failAt)
		j.CompletedAt = s.cfg.Now().Format("2006-01-02T15:04:05")
		return
	}

	j.polls++
	if j.TotalItems > 0 && j.ProcessedItems < j.TotalItems {
		j.ProcessedItems++
	}
	if j.polls >= j.steps {
		j.Status = model.JobStatusCompleted
		j.ProcessedItems = j.TotalItems
		j.CompletedAt = s.cfg.Now().Format("2006-01-02T15:04:05")
		s.files[*j.ResultFile] = file{body: j.result, created: s.cfg.Now()}
	}
}

func (s *Server) newJob(typ model.JobType, total, steps int, resultFile string, result []byte) *job {
	j := &job{
		Job: model.Job{
			ID:         uuid.New().String(),
			Type:       typ,
			Status:     model.JobStatusPending,
			TotalItems: total,
			ResultFile: model.StringPtr(resultFile),
			CreatedAt:  s.cfg.Now().Format("2006-01-02T15:04:05"),
		},
		steps:  steps,
		result: result,
	}
	s.mu.Lock()
	s.jobs[j.ID] = j
	s.mu.Unlock()
	return j
}

func started(w http.ResponseWriter, j *job, msg string) {
	writeJSON(w, http.StatusAccepted, map[string]string{
		"job_id":  j.ID,
		"status":  string(model.JobStatusPending),
		"message": msg,
	})
}

type extractRequest struct {
	BusinessType string `json:"business_type"`
	Location     string `json:"location"`
	NumPages     int    `json:"num_pages"`
}

var nonWord = regexp.MustCompile(`[^\w\s-]`)

func (s *Server) extractURLs(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.BusinessType) == "" || strings.TrimSpace(req.Location) == "" {
		writeDetail(w, http.StatusUnprocessableEntity, "business_type and location are required")
		return
	}
	if req.NumPages <= 0 {
		req.NumPages = 1
	}

	query := req.BusinessType + " in " + req.Location
	name := strings.ReplaceAll(strings.TrimSpace(nonWord.ReplaceAllString(query, "")), " ", "_") +
		"_" + s.cfg.Now().Format("20060102_150405") + ".csv"

	rows := make([][]string, 0, req.NumPages*s.cfg.RowsPerPage)
	for i := 1; i <= req.NumPages*s.cfg.RowsPerPage; i++ {
		slug := strings.ToLower(strings.ReplaceAll(req.BusinessType, " ", "-"))
		rows = append(rows, []string{
			fmt.Sprintf("%s %s #%d", req.Location, req.BusinessType, i),
			fmt.Sprintf("https://%s-%d.example.com", slug, i),
		})
	}
	body := mustDerive([]string{"Business Name", "Website URL"}, rows)

	j := s.newJob(model.JobTypeExtract, 0, s.cfg.ExtractSteps, name, body)
	if strings.EqualFold(strings.TrimSpace(req.BusinessType), FailKeyword) {
		j.failAt = "No results to save"
	}
	started(w, j, "URL extraction job started")
}

type fileRequest struct {
	InputFilename string `json:"input_filename"`
	Limit         int    `json:"limit"`
}

// inputTable loads a stored CSV, writing the 404 itself when missing.
func (s *Server) inputTable(w http.ResponseWriter, name string) (*csvtable.Table, bool) {
	s.mu.Lock()
	f, ok := s.files[name]
	s.mu.Unlock()
	if !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Input file '%s' not found", name))
		return nil, false
	}
	t, err := csvtable.ParseBytes(f.body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return t, true
}

func (s *Server) enrichContacts(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := s.inputTable(w, req.InputFilename)
	if !ok {
		return
	}

	headers := append(slices.Clone(t.Headers), "Email", "Phone Number", "Facebook", "Twitter", "LinkedIn", "Instagram", "Enrichment Status")
	site := siteColumn(t.Headers)
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		host := hostOf(cell(row.Data, site))
		rec := padded(row.Data, len(t.Headers))
		rec = append(rec,
			pick(i%3 != 2, "info@"+host, csvtable.NotAvailable),
			pick(i%2 == 0, fmt.Sprintf("(555) 010-%04d", i), csvtable.NotAvailable),
			pick(i%2 == 1, "https://facebook.com/"+host, csvtable.NotAvailable),
			pick(i%4 == 0, "https://twitter.com/"+host, csvtable.NotAvailable),
			pick(i%3 == 0, "https://linkedin.com/company/"+host, csvtable.NotAvailable),
			pick(i%5 == 0, "https://instagram.com/"+host, csvtable.NotAvailable),
			"Processed",
		)
		rows[i] = rec
	}

	j := s.newJob(model.JobTypeEnrich, len(rows), len(rows), "enriched_"+req.InputFilename, mustDerive(headers, rows))
	started(w, j, "Contact enrichment job started")
}

func (s *Server) rankSEO(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := s.inputTable(w, req.InputFilename)
	if !ok {
		return
	}

	site := siteColumn(t.Headers)
	type scored struct {
		data []string
		pain float64
	}
	items := make([]scored, len(t.Rows))
	for i, row := range t.Rows {
		m, d := scores(cell(row.Data, site))
		items[i] = scored{
			data: append(padded(row.Data, len(t.Headers)), strconv.Itoa(m), strconv.Itoa(d)),
			pain: painScore(float64(m), float64(d)),
		}
	}
	slices.SortStableFunc(items, func(a, b scored) int {
		switch {
		case a.pain > b.pain:
			return -1
		case a.pain < b.pain:
			return 1
		}
		return 0
	})

	stamp := s.cfg.Now().Format("2006-01-02 15:04:05")
	headers := append(slices.Clone(t.Headers), "Mobile_Score", "Desktop_Score", "PainScore", "SEO_Rank", "Ranking_Timestamp")
	rows := make([][]string, len(items))
	for i, it := range items {
		rows[i] = append(it.data, formatScore(it.pain), strconv.Itoa(i+1), stamp)
	}

	j := s.newJob(model.JobTypeRank, len(rows), len(rows), "ranked_"+req.InputFilename, mustDerive(headers, rows))
	started(w, j, "SEO ranking job started")
}

func (s *Server) rankCSVFile(w http.ResponseWriter, r *http.Request) {
	_, body, ok := readUpload(w, r)
	if !ok {
		return
	}
	t, err := csvtable.ParseBytes(body)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Error processing CSV: "+err.Error())
		return
	}

	var missing []string
	for _, col := range []string{"Mobile_Score", "Desktop_Score"} {
		if !slices.Contains(t.Headers, col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		writeDetail(w, http.StatusBadRequest, "Missing required columns: "+strings.Join(missing, ", "))
		return
	}
	mi, di := slices.Index(t.Headers, "Mobile_Score"), slices.Index(t.Headers, "Desktop_Score")

	data := make([]map[string]any, len(t.Rows))
	for i, row := range t.Rows {
		rec := make(map[string]any, len(t.Headers)+2)
		for c, h := range t.Headers {
			rec[h] = cell(row.Data, c)
		}
		m := parseScore(cell(row.Data, mi))
		d := parseScore(cell(row.Data, di))
		rec["Mobile_Score"] = m
		rec["Desktop_Score"] = d
		rec["PainScore"] = painScore(m, d)
		data[i] = rec
	}
	slices.SortStableFunc(data, func(a, b map[string]any) int {
		pa, pb := a["PainScore"].(float64), b["PainScore"].(float64)
		switch {
		case pa > pb:
			return -1
		case pa < pb:
			return 1
		}
		return 0
	})
	for i, rec := range data {
		rec["SEO_Rank"] = i + 1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":      true,
		"data":         data,
		"total_ranked": len(data),
	})
}

func (s *Server) auditUpload(w http.ResponseWriter, r *http.Request) {
	name, body, ok := readUpload(w, r)
	if !ok {
		return
	}
	stored := "upload_" + s.cfg.Now().Format("20060102_150405") + "_" + name
	s.PutFile(stored, body)
	writeJSON(w, http.StatusOK, map[string]string{
		"filename": stored,
		"message":  "File uploaded successfully",
	})
}

func (s *Server) auditRun(w http.ResponseWriter, r *http.Request) {
	var req fileRequest
	if !decodeBody(w, r, &req) {
		return
	}
	t, ok := s.inputTable(w, req.InputFilename)
	if !ok {
		return
	}
	v, err := csvtable.ValidateHeaders(t.Headers, csvtable.DefaultSynonyms())
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	nameCol := slices.Index(v.Headers, v.BusinessNameColumn)
	siteCol := slices.Index(v.Headers, v.WebsiteColumn)

	limit := req.Limit
	if limit <= 0 || limit > t.Len() {
		limit = t.Len()
	}

	stamp := s.cfg.Now().Format("2006-01-02 15:04:05")
	headers := append(slices.Clone(t.Headers), "Title", "Title_Length", "Meta_Description", "Meta_Desc_Length", "H1_Content", "Canonical_Set", "Audit_Status", "Audit_Timestamp")
	rows := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		rec := padded(row.Data, len(t.Headers))
		site := cell(row.Data, siteCol)
		switch {
		case i >= limit:
			rec = append(rec, "", "", "", "", "", "", "", "")
		case !csvtable.HasValue(site) || site == "No website available":
			rec = append(rec, "", "", "", "", "", "", "Skipped - No URL", stamp)
		default:
			title := cell(row.Data, nameCol) + " | Home"
			desc := "Welcome to " + cell(row.Data, nameCol) + "."
			rec = append(rec, title, strconv.Itoa(len(title)), desc, strconv.Itoa(len(desc)),
				cell(row.Data, nameCol), pick(i%2 == 0, "Yes", "No"), "SUCCESS", stamp)
		}
		rows[i] = rec
	}

	j := s.newJob(model.JobTypeAudit, limit, limit, "audited_"+req.InputFilename, mustDerive(headers, rows))
	started(w, j, "SEO audit job started")
}

func (s *Server) jobStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.poll(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, j)
}

// auditJobJSON is the audit job wire shape, which reports "error_message".
type auditJobJSON struct {
	ID             string          `json:"job_id"`
	Type           model.JobType   `json:"job_type"`
	Status         model.JobStatus `json:"status"`
	TotalItems     int             `json:"total_items"`
	ProcessedItems int             `json:"processed_items"`
	ResultFile     *string         `json:"result_file"`
	ErrorMessage   *string         `json:"error_message"`
	CreatedAt      string          `json:"created_at,omitempty"`
	CompletedAt    string          `json:"completed_at,omitempty"`
}

func (s *Server) auditJobStatus(w http.ResponseWriter, r *http.Request) {
	j, ok := s.poll(w, chi.URLParam(r, "id"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, auditJobJSON{
		ID:             j.ID,
		Type:           j.Type,
		Status:         j.Status,
		TotalItems:     j.TotalItems,
		ProcessedItems: j.ProcessedItems,
		ResultFile:     j.ResultFile,
		ErrorMessage:   j.Error,
		CreatedAt:      j.CreatedAt,
		CompletedAt:    j.CompletedAt,
	})
}

// poll advances the job and returns a snapshot of it.
func (s *Server) poll(w http.ResponseWriter, id string) (model.Job, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Job '%s' not found", id))
		return model.Job{}, false
	}
	j.advance(s)
	snap := j.Job
	if snap.Status != model.JobStatusCompleted {
		snap.ResultFile = nil
	}
	return snap, true
}

func (s *Server) download(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	j, ok := s.jobs[id]
	var status model.JobStatus
	var body []byte
	var name string
	if ok {
		status = j.Status
		body = j.result
		name = j.ResultFileName()
	}
	s.mu.Unlock()

	switch {
	case !ok:
		writeDetail(w, http.StatusNotFound, fmt.Sprintf("Job '%s' not found", id))
	case status != model.JobStatusCompleted:
		writeDetail(w, http.StatusBadRequest, "Job is not completed yet. Current status: "+string(status))
	default:
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
		w.WriteHeader(http.StatusOK)
		w.Write(body) //nolint:errcheck
	}
}

func readUpload(w http.ResponseWriter, r *http.Request) (string, []byte, bool) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeDetail(w, http.StatusBadRequest, "Invalid multipart upload")
		return "", nil, false
	}
	f, hdr, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "Missing file")
		return "", nil, false
	}
	defer f.Close() //nolint:errcheck

	if !strings.HasSuffix(hdr.Filename, ".csv") {
		writeDetail(w, http.StatusBadRequest, "Only CSV files are allowed")
		return "", nil, false
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, f); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Failed to upload file: "+err.Error())
		return "", nil, false
	}
	return hdr.Filename, buf.Bytes(), true
}

func mustDerive(headers []string, rows [][]string) []byte {
	body, err := csvtable.Derive(headers, rows)
	if err != nil {
		panic(err)
	}
	return []byte(body)
}

func siteColumn(headers []string) int {
	for i, h := range headers {
		if h == "Website URL" {
			return i
		}
	}
	return csvtable.ColumnIndex(headers, "web")
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func padded(row []string, n int) []string {
	out := make([]string, max(n, len(row)))
	copy(out, row)
	return out
}

func pick(cond bool, a, b string) string {
	if cond {
		return a
	}
	return b
}

func hostOf(site string) string {
	h := strings.TrimPrefix(strings.TrimPrefix(site, "https://"), "http://")
	if i := strings.IndexAny(h, "/?#"); i >= 0 {
		h = h[:i]
	}
	if h == "" {
		return "example.com"
	}
	return h
}

// scores derives stable pseudo Lighthouse scores from a site URL.
func scores(site string) (mobile, desktop int) {
	h := fnv.New32a()
	h.Write([]byte(site)) //nolint:errcheck
	sum := h.Sum32()
	mobile = 20 + int(sum%75)
	desktop = min(100, mobile+10+int((sum>>8)%20))
	return mobile, desktop
}

func painScore(mobile, desktop float64) float64 {
	pain := (100-mobile)/100*0.6 + (100-desktop)/100*0.4
	return math.Round(pain*10000) / 100
}

func parseScore(v string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0
	}
	return f
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
