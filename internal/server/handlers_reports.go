package server

import (
	"net/http"
	"strconv"
)

// handleDashboard handles GET /api/dashboard.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.Ledger.Snapshot()
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s.app.ReportService.Dashboard(snap))
}

// handleReports handles GET /api/reports. ?format=markdown or ?format=html
// return the rendered summary instead of JSON.
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.Ledger.Snapshot()
	if err != nil {
		WriteServiceError(w, err)
		return
	}

	switch r.URL.Query().Get("format") {
	case "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(s.app.ReportService.Markdown(snap)))
		return
	case "html":
		html, err := s.app.ReportService.HTML(snap)
		if err != nil {
			WriteServiceError(w, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write(html)
		return
	}
	WriteJSON(w, http.StatusOK, s.app.ReportService.Report(snap))
}

// handleExpenseChart handles GET /api/reports/expenses.png.
func (s *Server) handleExpenseChart(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	sess, ok := requireSession(w, r)
	if !ok {
		return
	}
	snap, err := sess.Ledger.Snapshot()
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	png, err := s.app.ReportService.ExpenseChart(snap)
	if err != nil {
		WriteServiceError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}
