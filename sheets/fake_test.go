package sheets

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// fakeSheets is an in-memory stand-in for the Sheets API, faithful enough
// for the sync service: sheet metadata, batchUpdate (addSheet, row delete,
// sortRange), and RAW values read/update/append.
type fakeSheets struct {
	mu      sync.Mutex
	order   []string
	sheets  map[string][][]string
	ids     map[string]int64
	nextID  int64
	deletes []int64 // startIndex of each row-delete request, in arrival order
	sorts   int
	// failures holds canned responses returned (and consumed) before real
	// handling, keyed by "<METHOD> <path suffix>".
	failures map[string][]int
}

func newFakeSheets() *fakeSheets {
	return &fakeSheets{
		sheets:   map[string][][]string{},
		ids:      map[string]int64{},
		failures: map[string][]int{},
	}
}

func (f *fakeSheets) addSheet(title string) int64 {
	if id, ok := f.ids[title]; ok {
		return id
	}
	f.nextID++
	f.ids[title] = f.nextID
	f.sheets[title] = nil
	f.order = append(f.order, title)
	return f.nextID
}

func (f *fakeSheets) seed(title string, rows [][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addSheet(title)
	f.sheets[title] = rows
}

func (f *fakeSheets) rows(title string) [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([][]string, len(f.sheets[title]))
	for i, r := range f.sheets[title] {
		rows[i] = append([]string(nil), r...)
	}
	return rows
}

// failNext makes the next n requests matching the method+suffix fail with
// the given status.
func (f *fakeSheets) failNext(method, suffix string, status, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := method + " " + suffix
	for i := 0; i < n; i++ {
		f.failures[key] = append(f.failures[key], status)
	}
}

func (f *fakeSheets) consumeFailure(method, path string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for key, statuses := range f.failures {
		parts := strings.SplitN(key, " ", 2)
		if parts[0] == method && strings.HasSuffix(path, parts[1]) && len(statuses) > 0 {
			f.failures[key] = statuses[1:]
			return statuses[0], true
		}
	}
	return 0, false
}

var rangeRe = regexp.MustCompile(`^([A-Z])(\d*):([A-Z])(\d*)$`)

type parsedRange struct {
	sheet          string
	startRow       int // 1-based, 0 = whole column
	endRow         int
	startCol, endCol int // 0-based
}

func parseRange(s string) (parsedRange, error) {
	name, cells, ok := strings.Cut(s, "!")
	if !ok {
		return parsedRange{}, fmt.Errorf("range %q has no sheet", s)
	}
	m := rangeRe.FindStringSubmatch(cells)
	if m == nil {
		return parsedRange{}, fmt.Errorf("range %q not understood", s)
	}
	pr := parsedRange{
		sheet:    name,
		startCol: int(m[1][0] - 'A'),
		endCol:   int(m[3][0] - 'A'),
	}
	if m[2] != "" {
		pr.startRow, _ = strconv.Atoi(m[2])
	}
	if m[4] != "" {
		pr.endRow, _ = strconv.Atoi(m[4])
	}
	return pr, nil
}

func (f *fakeSheets) handler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status, ok := f.consumeFailure(r.Method, r.URL.Path); ok {
			w.WriteHeader(status)
			fmt.Fprintf(w, `{"error":{"code":%d,"message":"injected failure"}}`, status)
			return
		}

		path := strings.TrimPrefix(r.URL.Path, "/spreadsheets/")
		switch {
		case strings.HasSuffix(path, ":batchUpdate") && r.Method == http.MethodPost:
			f.handleBatchUpdate(w, r)
		case strings.Contains(path, "/values/"):
			_, rng, _ := strings.Cut(path, "/values/")
			if strings.HasSuffix(rng, ":append") {
				f.handleAppend(w, r, strings.TrimSuffix(rng, ":append"))
				return
			}
			switch r.Method {
			case http.MethodGet:
				f.handleGet(w, rng)
			case http.MethodPut:
				f.handleUpdate(w, r, rng)
			default:
				http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			}
		case r.Method == http.MethodGet:
			f.handleMetadata(w)
		default:
			t.Errorf("fake sheets: unhandled %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	})
}

func (f *fakeSheets) handleMetadata(w http.ResponseWriter) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var meta Spreadsheet
	for _, title := range f.order {
		meta.Sheets = append(meta.Sheets, Sheet{Properties: SheetProperties{
			SheetID: f.ids[title], Title: title,
		}})
	}
	json.NewEncoder(w).Encode(meta)
}

func (f *fakeSheets) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Requests []Request `json:"requests"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var resp BatchUpdateResponse
	for _, req := range body.Requests {
		switch {
		case req.AddSheet != nil:
			id := f.addSheet(req.AddSheet.Properties.Title)
			reply := struct {
				AddSheet *struct {
					Properties SheetProperties `json:"properties"`
				} `json:"addSheet"`
			}{}
			reply.AddSheet = &struct {
				Properties SheetProperties `json:"properties"`
			}{Properties: SheetProperties{SheetID: id, Title: req.AddSheet.Properties.Title}}
			resp.Replies = append(resp.Replies, reply)
		case req.DeleteDimension != nil:
			rng := req.DeleteDimension.Range
			f.deletes = append(f.deletes, rng.StartIndex)
			for title, id := range f.ids {
				if id == rng.SheetID {
					rows := f.sheets[title]
					if rng.StartIndex < int64(len(rows)) {
						f.sheets[title] = append(rows[:rng.StartIndex], rows[rng.EndIndex:]...)
					}
				}
			}
			resp.Replies = append(resp.Replies, struct {
				AddSheet *struct {
					Properties SheetProperties `json:"properties"`
				} `json:"addSheet"`
			}{})
		case req.SortRange != nil:
			// Recorded but not applied: tests assert submission order.
			f.sorts++
			resp.Replies = append(resp.Replies, struct {
				AddSheet *struct {
					Properties SheetProperties `json:"properties"`
				} `json:"addSheet"`
			}{})
		}
	}
	json.NewEncoder(w).Encode(resp)
}

func (f *fakeSheets) handleGet(w http.ResponseWriter, rng string) {
	pr, err := parseRange(rng)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.sheets[pr.sheet]
	start, end := 0, len(rows)
	if pr.startRow > 0 {
		start = pr.startRow - 1
	}
	if pr.endRow > 0 && pr.endRow < end {
		end = pr.endRow
	}
	var out struct {
		Values [][]string `json:"values,omitempty"`
	}
	for i := start; i < end && i < len(rows); i++ {
		row := rows[i]
		var cells []string
		for c := pr.startCol; c <= pr.endCol && c < len(row); c++ {
			cells = append(cells, row[c])
		}
		out.Values = append(out.Values, cells)
	}
	json.NewEncoder(w).Encode(out)
}

func (f *fakeSheets) handleUpdate(w http.ResponseWriter, r *http.Request, rng string) {
	pr, err := parseRange(rng)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.sheets[pr.sheet]
	for i, newRow := range body.Values {
		idx := pr.startRow - 1 + i
		for len(rows) <= idx {
			rows = append(rows, nil)
		}
		rows[idx] = append([]string(nil), newRow...)
	}
	f.sheets[pr.sheet] = rows
	w.Write([]byte("{}"))
}

func (f *fakeSheets) handleAppend(w http.ResponseWriter, r *http.Request, rng string) {
	pr, err := parseRange(rng)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Values [][]string `json:"values"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, row := range body.Values {
		f.sheets[pr.sheet] = append(f.sheets[pr.sheet], append([]string(nil), row...))
	}
	w.Write([]byte("{}"))
}

// newTestSyncer wires a Syncer against the fake with compressed retries.
func newTestSyncer(t *testing.T, fake *fakeSheets) *Syncer {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	client, err := NewClient("test-spreadsheet", StaticToken("test-token"))
	if err != nil {
		t.Fatal(err)
	}
	client.BaseURL = srv.URL
	s := NewSyncer(client, nil)
	s.Retry.Delay = time.Millisecond
	s.chunkPause = time.Millisecond
	return s
}
